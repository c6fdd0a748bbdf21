// Package watchtrigger parses watch-trigger schedules (a cron expression,
// optionally in a named time zone, or a fixed interval) and computes each
// schedule's next run time. It does not run checks or persist anything
// itself; the watch command records run history through watchstore.Store.
package watchtrigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed trigger schedule: either a cron expression or a
// fixed interval, never both.
type Schedule struct {
	Kind     string
	CronExpr string
	Every    time.Duration
	Timezone string
}

// NewSchedule parses a schedule from a cron expression and/or a fixed
// interval. Exactly one of cronExpr or every must be set.
func NewSchedule(cronExpr string, every time.Duration, timezone string) (Schedule, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	switch {
	case cronExpr != "" && every > 0:
		return Schedule{}, fmt.Errorf("schedule cannot set both a cron expression and an interval")
	case cronExpr != "":
		if _, err := cronParser.Parse(cronExpr); err != nil {
			return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
		}
		return Schedule{Kind: "cron", CronExpr: cronExpr, Timezone: strings.TrimSpace(timezone)}, nil
	case every > 0:
		return Schedule{Kind: "every", Every: every}, nil
	default:
		return Schedule{}, fmt.Errorf("schedule requires a cron expression or an interval")
	}
}

// Next returns the next run time for the schedule strictly after now.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Kind {
	case "cron":
		loc := now.Location()
		if s.Timezone != "" {
			if tz, err := time.LoadLocation(s.Timezone); err == nil {
				loc = tz
			}
		}
		schedule, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
		}
		return schedule.Next(now.In(loc)), nil
	case "every":
		if s.Every <= 0 {
			return time.Time{}, fmt.Errorf("every schedule missing duration")
		}
		return now.Add(s.Every), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
