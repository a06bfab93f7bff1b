// Package ui renders command output: status colors, task tables and
// confirmation prompts. Color is dropped automatically when stdout is not
// a terminal or NO_COLOR is set.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/termwork/tasksync/internal/schema"
)

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#5F3DC4", Dark: "#9775FA"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2B8A3E", Dark: "#69DB7C"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#E67700", Dark: "#FFD43B"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C92A2A", Dark: "#FF6B6B"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#868E96", Dark: "#868E96"}

	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func RenderAccent(s string) string { return AccentStyle.Render(s) }
func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }

// Check marks used in command summaries.
const (
	MarkPass = "✓"
	MarkFail = "✗"
	MarkWarn = "!"
)

// RenderStatus colors a task status by how actionable it is.
func RenderStatus(s string) string {
	switch s {
	case schema.StatusCompleted:
		return RenderPass(s)
	case schema.StatusFailed, schema.StatusError:
		return RenderFail(s)
	case schema.StatusReserved, schema.StatusInProgress:
		return RenderAccent(s)
	case schema.StatusSuspended:
		return RenderWarn(s)
	case schema.StatusExited, schema.StatusObsolete:
		return RenderMuted(s)
	default:
		return s
	}
}

// RenderRequestStatus colors a process request status.
func RenderRequestStatus(s schema.RequestStatus) string {
	switch s {
	case schema.RequestCreated:
		return RenderPass(string(s))
	case schema.RequestRejected:
		return RenderFail(string(s))
	default:
		return RenderWarn(string(s))
	}
}

// RenderActionStatus colors a queued action outcome. Empty renders as "-".
func RenderActionStatus(s string) string {
	switch s {
	case "":
		return RenderMuted("-")
	case schema.ActionDone:
		return RenderPass(s)
	case schema.ActionFailed:
		return RenderFail(s)
	default:
		return RenderWarn(s)
	}
}

// Summary renders "label: n" pairs in a stable order, skipping zeros.
func Summary(pairs ...any) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		label, _ := pairs[i].(string)
		n, _ := pairs[i+1].(int)
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d", label, n))
	}
	if len(parts) == 0 {
		return RenderMuted("nothing to do")
	}
	return strings.Join(parts, ", ")
}
