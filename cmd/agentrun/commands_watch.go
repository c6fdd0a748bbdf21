package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentrun/internal/watchstore"
	"github.com/haasonsaas/agentrun/internal/watchtrigger"
)

func buildWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a persisted, scheduled check that wakes the agent on failure",
	}
	cmd.AddCommand(buildWatchRunCmd(), buildWatchTriggerCmd(), buildWatchStatusCmd())
	return cmd
}

func watchDBPath(dbPath string) string {
	if strings.TrimSpace(dbPath) != "" {
		return dbPath
	}
	return filepath.Join(defaultStateDir(), "watch.db")
}

func buildWatchRunCmd() *cobra.Command {
	var (
		name         string
		check        string
		cronExpr     string
		every        time.Duration
		dbPath       string
		providerName string
		model        string
		workspace    string
		profileName  string
		shellPath    string
		sessionConn  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watch daemon: periodically execute a check command and wake the agent on nonzero exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(check) == "" {
				return fmt.Errorf("--name and --check are required")
			}
			schedule, err := watchtrigger.NewSchedule(cronExpr, every, "")
			if err != nil {
				return err
			}

			store, err := watchstore.Open(watchDBPath(dbPath))
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := store.SetWatchState(ctx, int64(os.Getpid())); err != nil {
				return fmt.Errorf("record watch state: %w", err)
			}
			defer store.ClearWatchState(context.Background())

			ws, err := resolveWorkspace(workspace)
			if err != nil {
				return err
			}

			var session *chatSession
			newSession := func() (*chatSession, error) {
				provider, resolvedModel, err := buildProvider(providerName, model)
				if err != nil {
					return nil, err
				}
				return newChatSession(provider, resolvedModel, ws, profileName, shellPath, sessionConn, ""), nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %q on schedule %s/%s, recording to %s\n", name, schedule.CronExpr, schedule.Every, watchDBPath(dbPath))

			for {
				next, err := schedule.Next(time.Now())
				if err != nil {
					return fmt.Errorf("compute next run: %w", err)
				}
				timer := time.NewTimer(time.Until(next))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}

				if err := store.UpdateHeartbeat(ctx); err != nil {
					fmt.Fprintf(out, "[watch] heartbeat failed: %v\n", err)
				}

				runID, err := store.InsertRun(ctx, name)
				if err != nil {
					fmt.Fprintf(out, "[watch] insert run failed: %v\n", err)
					continue
				}

				exitCode, stdout, stderr, timedOut := runCheck(ctx, check, ws)
				if err := store.UpdateRunCheckResult(ctx, runID, exitCode, stdout, stderr, timedOut); err != nil {
					fmt.Fprintf(out, "[watch] record check result failed: %v\n", err)
				}

				if exitCode == 0 && !timedOut {
					_ = store.UpdateRunFinished(ctx, runID, watchstore.StatusSkipped, nil, nil, nil)
					continue
				}

				if session == nil {
					session, err = newSession()
					if err != nil {
						fmt.Fprintf(out, "[watch] build agent session failed: %v\n", err)
						_ = store.UpdateRunFinished(ctx, runID, watchstore.StatusFailed, strPtr(err.Error()), nil, nil)
						continue
					}
				}

				wakeMsg := fmt.Sprintf("Watch trigger %q reported a failing check.\nExit code: %d\nStdout:\n%s\nStderr:\n%s",
					name, exitCode, stdout, stderr)
				_ = store.UpdateRunAgentStarted(ctx, runID, name)
				reply, runErr := session.RunOnce(ctx, wakeMsg)
				if runErr != nil {
					_ = store.UpdateRunFinished(ctx, runID, watchstore.StatusFailed, strPtr(runErr.Error()), nil, nil)
					fmt.Fprintf(out, "[watch] agent run failed: %v\n", runErr)
					continue
				}
				_ = store.UpdateRunFinished(ctx, runID, watchstore.StatusCompleted, nil, strPtr(reply), nil)
				fmt.Fprintf(out, "[watch] %s woke the agent, run #%d completed\n", name, runID)
			}
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "trigger name")
	cmd.Flags().StringVar(&check, "check", "", "shell command whose nonzero exit wakes the agent")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression (mutually exclusive with --every)")
	cmd.Flags().DurationVar(&every, "every", 0, "fixed interval (mutually exclusive with --cron)")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the watch-run sqlite database (default ~/.agentrun/watch.db)")
	cmd.Flags().StringVar(&providerName, "provider", envOr("AGENTRUN_PROVIDER", "anthropic"), "chat provider: anthropic or openai")
	cmd.Flags().StringVar(&model, "model", os.Getenv("AGENTRUN_MODEL"), "model id")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root (default: cwd)")
	cmd.Flags().StringVar(&profileName, "profile", "coding", "tool policy profile")
	cmd.Flags().StringVar(&shellPath, "shell", envOr("SHELL", "/bin/bash"), "shell binary for run_command")
	cmd.Flags().StringVar(&sessionConn, "session", envOr("AGENTRUN_SESSION", "local"), "run_command session: \"local\" or \"ssh://user@host[:port]\"")

	return cmd
}

func buildWatchTriggerCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "trigger <name>",
		Short: "Queue a pending trigger record in the watch database (watch run does not read this queue)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := watchstore.Open(watchDBPath(dbPath))
			if err != nil {
				return err
			}
			defer store.Close()
			id, err := store.InsertPendingTrigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued pending trigger #%d for %q\n", id, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the watch-run sqlite database")
	return cmd
}

func buildWatchStatusCmd() *cobra.Command {
	var dbPath string
	var triggerName string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the watch daemon's heartbeat and recent trigger runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := watchstore.Open(watchDBPath(dbPath))
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			state, err := store.GetWatchState(cmd.Context())
			if err != nil || state == nil {
				fmt.Fprintln(out, "watch daemon: not running")
			} else {
				fmt.Fprintf(out, "watch daemon: pid %d, started %s, last heartbeat %s\n",
					state.PID, state.StartedAt.Format(time.RFC3339), state.LastHeartbeat.Format(time.RFC3339))
			}

			runs, err := store.ListRuns(cmd.Context(), watchstore.ListRunsFilter{TriggerName: triggerName, Limit: 20})
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(out, "#%d %s %s started=%s\n", run.ID, run.TriggerName, run.Status, run.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the watch-run sqlite database")
	cmd.Flags().StringVar(&triggerName, "name", "", "filter by trigger name")
	return cmd
}

// runCheck executes the check command under a shell, capturing stdout and
// stderr separately and bounding wall-clock time so a hung check doesn't
// stall the watch loop forever.
func runCheck(ctx context.Context, command, dir string) (exitCode int, stdout, stderr string, timedOut bool) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if checkCtx.Err() == context.DeadlineExceeded {
		return -1, outBuf.String(), errBuf.String(), true
	}
	if err == nil {
		return 0, outBuf.String(), errBuf.String(), false
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), outBuf.String(), errBuf.String(), false
	}
	return -1, outBuf.String(), errBuf.String(), false
}

func strPtr(s string) *string { return &s }
