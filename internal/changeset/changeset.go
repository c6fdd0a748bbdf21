// Package changeset infers a set of file edits from successful tool
// results: created/edited/deleted files with added/removed line counts
// and a short preview, so a caller can offer revert or viewer
// affordances. Edit stats come from parsing the ```diff fenced block in
// a tool result, counting +/- lines and skipping the ---/+++/@@ headers.
package changeset

import (
	"regexp"
	"strings"
)

// EditKind classifies what happened to a file.
type EditKind string

const (
	EditCreated EditKind = "created"
	EditEdited  EditKind = "edited"
	EditDeleted EditKind = "deleted"
)

// Edit is one observed file change.
type Edit struct {
	Path        string
	Kind        EditKind
	Summary     string
	AddedLines  int
	RemovedLines int
	Preview     []string // up to 5 lines
	BackupPath  string   // set for EditDeleted, if the tool result carried one
}

// Tracker accumulates Edits observed across a run, keyed by path so a later
// observation on the same path replaces (rather than appends to) the
// earlier one.
type Tracker struct {
	edits map[string]*Edit
	order []string
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{edits: make(map[string]*Edit)}
}

// Edits returns the tracked edits in first-observed order.
func (t *Tracker) Edits() []Edit {
	out := make([]Edit, 0, len(t.order))
	for _, path := range t.order {
		out = append(out, *t.edits[path])
	}
	return out
}

// ObserveCreate records a create/overwrite of path whose new content is
// newContent (used only for the added-lines count).
func (t *Tracker) ObserveCreate(path, newContent string) {
	added := strings.Count(newContent, "\n")
	if newContent != "" && !strings.HasSuffix(newContent, "\n") {
		added++
	}
	t.record(path, &Edit{
		Path:       path,
		Kind:       EditCreated,
		Summary:    "Created file",
		AddedLines: added,
	})
}

// ObserveEdit records a str_replace/multi-edit whose tool result contains a
// fenced ```diff block. currentContent is the file's content after the
// edit, used to detect reverts: an edit no longer present in the file is
// dropped rather than reported.
func (t *Tracker) ObserveEdit(path, toolResultText, replacementSnippet, currentContent string) {
	if replacementSnippet != "" && currentContent != "" && !strings.Contains(currentContent, replacementSnippet) {
		// The user (or a later tool call) reverted this edit; don't track it.
		t.forget(path)
		return
	}

	added, removed, preview := parseDiffStat(toolResultText)
	t.record(path, &Edit{
		Path:         path,
		Kind:         EditEdited,
		Summary:      "Edited file",
		AddedLines:   added,
		RemovedLines: removed,
		Preview:      preview,
	})
}

// ObserveReplace records a str_replace/insert-style edit from the call's
// own argument snippets, for tools whose results are plain text with no
// diff block: removed lines are counted from oldStr, added lines from
// newStr (either may be empty). currentContent enables the same revert
// detection as ObserveEdit and may be "" to skip it.
func (t *Tracker) ObserveReplace(path, oldStr, newStr, currentContent string) {
	if newStr != "" && currentContent != "" && !strings.Contains(currentContent, newStr) {
		t.forget(path)
		return
	}

	var preview []string
	for _, line := range snippetLines(oldStr) {
		if len(preview) == 5 {
			break
		}
		preview = append(preview, "-"+line)
	}
	for _, line := range snippetLines(newStr) {
		if len(preview) == 5 {
			break
		}
		preview = append(preview, "+"+line)
	}

	t.record(path, &Edit{
		Path:         path,
		Kind:         EditEdited,
		Summary:      "Edited file",
		AddedLines:   len(snippetLines(newStr)),
		RemovedLines: len(snippetLines(oldStr)),
		Preview:      preview,
	})
}

// snippetLines splits a replacement snippet into lines, ignoring a single
// trailing newline so "a\nb\n" counts as two lines, not three.
func snippetLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// ObserveDelete records a file removal, extracting an optional
// `backup_path="..."` attribute from the tool result text.
func (t *Tracker) ObserveDelete(path, toolResultText string) {
	t.record(path, &Edit{
		Path:       path,
		Kind:       EditDeleted,
		Summary:    "Deleted file",
		BackupPath: extractBackupPath(toolResultText),
	})
}

func (t *Tracker) record(path string, e *Edit) {
	if _, exists := t.edits[path]; !exists {
		t.order = append(t.order, path)
	}
	t.edits[path] = e
}

func (t *Tracker) forget(path string) {
	if _, exists := t.edits[path]; !exists {
		return
	}
	delete(t.edits, path)
	for i, p := range t.order {
		if p == path {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

var backupPathPattern = regexp.MustCompile(`backup_path="([^"]*)"`)

func extractBackupPath(text string) string {
	m := backupPathPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// parseDiffStat counts added/removed lines inside a ```diff fenced block,
// skipping ---/+++/@@ headers, and returns up to 5 preview lines (the
// added/removed lines themselves, in order).
func parseDiffStat(text string) (added, removed int, preview []string) {
	lines := strings.Split(text, "\n")
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```diff") {
			inFence = true
			continue
		}
		if inFence && strings.HasPrefix(trimmed, "```") {
			break
		}
		if !inFence {
			continue
		}
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
			if len(preview) < 5 {
				preview = append(preview, line)
			}
		case strings.HasPrefix(line, "-"):
			removed++
			if len(preview) < 5 {
				preview = append(preview, line)
			}
		}
	}
	return added, removed, preview
}
