// Package contextreduce applies a deterministic, cheap reduction pass to
// a cloned history before every inference call — as distinct from the
// LLM-driven compaction engine, which only runs on context overflow.
package contextreduce

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/agentrun/internal/agentloop"
)

// Config holds the reducer's windowing and filtering configuration.
type Config struct {
	// MaxMessages caps the conversation length; 0 means unbounded. The
	// oldest non-pinned messages are dropped first when exceeded, keeping
	// a leading System message if present.
	MaxMessages int

	// KeepLastActionResultsN is the number of most recent tool-result
	// actions whose payload is kept verbatim; older ones are replaced
	// with a placeholder.
	KeepLastActionResultsN int

	// KeepLastActionMessagesN is the number of most recent actions whose
	// associated message text is kept regardless of size.
	KeepLastActionMessagesN int

	// ActionMessageSizeLimit is the character limit applied to message
	// text associated with actions older than KeepLastActionMessagesN.
	ActionMessageSizeLimit int

	// ScratchpadPaths are tool-call path arguments (for create/str_replace)
	// that mark scratchpad/todo bookkeeping: these are filtered from
	// history except when produced by the most recent user/assistant
	// message.
	ScratchpadPaths []string
}

// DefaultConfig returns the reducer's default knobs: no message cap, the
// last 3 tool results and 5 action messages kept, a 4000-character limit,
// and the common scratchpad paths.
func DefaultConfig() Config {
	return Config{
		KeepLastActionResultsN:  3,
		KeepLastActionMessagesN: 5,
		ActionMessageSizeLimit:  4000,
		ScratchpadPaths:         []string{"/scratchpad", ".agent/scratchpad", "SCRATCHPAD.md"},
	}
}

const resultPlaceholder = "[older tool result omitted to fit context budget]"

// Reducer implements agentloop.ContextReducer.
type Reducer struct {
	cfg Config
}

func New(cfg Config) *Reducer { return &Reducer{cfg: cfg} }

// Reduce applies windowing, placeholder-replacement and scratchpad
// filtering. messages is owned by the caller; Reduce returns a new slice
// and never mutates its input in place.
func (r *Reducer) Reduce(messages []agentloop.Message) []agentloop.Message {
	out := append([]agentloop.Message(nil), messages...)
	out = r.filterScratchpad(out)
	out = r.applyActionWindow(out)
	out = r.applyMaxMessages(out)
	return out
}

// actionRef locates one tool-result ContentPart within out.
type actionRef struct {
	msgIndex  int
	partIndex int
}

func (r *Reducer) applyActionWindow(messages []agentloop.Message) []agentloop.Message {
	var actions []actionRef
	for mi, m := range messages {
		if m.Role != agentloop.RoleTool {
			continue
		}
		for pi, p := range m.Parts {
			if p.Kind == agentloop.PartToolResult {
				actions = append(actions, actionRef{mi, pi})
			}
		}
	}
	if len(actions) == 0 {
		return messages
	}

	out := messages
	cloned := false
	clone := func() {
		if !cloned {
			out = append([]agentloop.Message(nil), messages...)
			for i := range out {
				out[i].Parts = append([]agentloop.ContentPart(nil), out[i].Parts...)
			}
			cloned = true
		}
	}

	resultCutoff := len(actions) - r.cfg.KeepLastActionResultsN
	msgCutoff := len(actions) - r.cfg.KeepLastActionMessagesN

	for i, ref := range actions {
		if r.cfg.KeepLastActionResultsN > 0 && i < resultCutoff {
			clone()
			part := out[ref.msgIndex].Parts[ref.partIndex]
			if string(part.ToolResultPayload) != `"`+resultPlaceholder+`"` {
				part.ToolResultPayload = json.RawMessage(`"` + resultPlaceholder + `"`)
				out[ref.msgIndex].Parts[ref.partIndex] = part
			}
		}
		if r.cfg.KeepLastActionMessagesN > 0 && i < msgCutoff && r.cfg.ActionMessageSizeLimit > 0 {
			// Drop oversized text on the message carrying this action's
			// matching tool-call, one message back (best-effort: walk
			// backward from ref.msgIndex to the nearest Assistant message).
			for j := ref.msgIndex - 1; j >= 0; j-- {
				if messages[j].Role != agentloop.RoleAssistant {
					continue
				}
				if textLen(messages[j]) > r.cfg.ActionMessageSizeLimit {
					clone()
					out[j].Parts = dropOversizedText(out[j].Parts)
				}
				break
			}
		}
	}
	return out
}

func textLen(m agentloop.Message) int {
	n := 0
	for _, p := range m.Parts {
		if p.Kind == agentloop.PartText {
			n += len(p.Text)
		}
	}
	return n
}

func dropOversizedText(parts []agentloop.ContentPart) []agentloop.ContentPart {
	out := make([]agentloop.ContentPart, 0, len(parts))
	for _, p := range parts {
		if p.Kind == agentloop.PartText {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *Reducer) applyMaxMessages(messages []agentloop.Message) []agentloop.Message {
	if r.cfg.MaxMessages <= 0 || len(messages) <= r.cfg.MaxMessages {
		return messages
	}
	keepFirst := 0
	if len(messages) > 0 && messages[0].Role == agentloop.RoleSystem {
		keepFirst = 1
	}
	overflow := len(messages) - r.cfg.MaxMessages
	if overflow >= len(messages)-keepFirst {
		return messages[:keepFirst]
	}
	out := make([]agentloop.Message, 0, r.cfg.MaxMessages)
	out = append(out, messages[:keepFirst]...)
	out = append(out, messages[keepFirst+overflow:]...)
	return out
}

// filterScratchpad removes create/str_replace tool-call and tool-result
// parts that target a scratchpad path, except those produced by the most
// recent user/assistant message.
func (r *Reducer) filterScratchpad(messages []agentloop.Message) []agentloop.Message {
	if len(r.cfg.ScratchpadPaths) == 0 {
		return messages
	}
	lastActionable := -1
	for i, m := range messages {
		if m.Role == agentloop.RoleUser || m.Role == agentloop.RoleAssistant {
			lastActionable = i
		}
	}

	// Collect the ids of the scratchpad calls removed below so their
	// results are removed with them.
	dropped := make(map[string]bool)
	for i, m := range messages {
		if i == lastActionable || m.Role != agentloop.RoleAssistant {
			continue
		}
		for _, p := range m.Parts {
			if r.isScratchpadPart(p) {
				dropped[p.ToolCallID] = true
			}
		}
	}

	out := make([]agentloop.Message, 0, len(messages))
	for i, m := range messages {
		if i == lastActionable || (m.Role != agentloop.RoleAssistant && m.Role != agentloop.RoleTool) {
			out = append(out, m)
			continue
		}
		filtered := make([]agentloop.ContentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if r.isScratchpadPart(p) || (p.Kind == agentloop.PartToolResult && dropped[p.ToolResultCallID]) {
				continue
			}
			filtered = append(filtered, p)
		}
		if len(filtered) == 0 {
			continue
		}
		cm := m
		cm.Parts = filtered
		out = append(out, cm)
	}
	return out
}

func (r *Reducer) isScratchpadPart(p agentloop.ContentPart) bool {
	if p.Kind != agentloop.PartToolCall {
		return false
	}
	if p.ToolCallName != "create" && p.ToolCallName != "str_replace" {
		return false
	}
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(p.ToolCallArgs, &args); err != nil {
		return false
	}
	for _, sp := range r.cfg.ScratchpadPaths {
		if strings.EqualFold(args.Path, sp) {
			return true
		}
	}
	return false
}

// RecoverScratchpad reconstructs a scratchpad file's content from the
// sequence of create/str_replace tool calls targeting it in history, for
// use when the on-disk file is missing. create seeds the content;
// str_replace applies an exactly-one-match replacement in order, mirroring
// internal/tools/files' str_replace contract.
func RecoverScratchpad(messages []agentloop.Message, path string) (string, bool) {
	var content string
	found := false
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Kind != agentloop.PartToolCall {
				continue
			}
			switch p.ToolCallName {
			case "create":
				var args struct {
					Path     string `json:"path"`
					FileText string `json:"file_text"`
				}
				if json.Unmarshal(p.ToolCallArgs, &args) == nil && strings.EqualFold(args.Path, path) {
					content = args.FileText
					found = true
				}
			case "str_replace":
				var args struct {
					Path   string `json:"path"`
					OldStr string `json:"old_str"`
					NewStr string `json:"new_str"`
				}
				if json.Unmarshal(p.ToolCallArgs, &args) == nil && strings.EqualFold(args.Path, path) && found && strings.Count(content, args.OldStr) == 1 {
					content = strings.Replace(content, args.OldStr, args.NewStr, 1)
				}
			}
		}
	}
	return content, found
}
