// Package display provides terminal formatting for mailtriage output.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailtriage/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	HighStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	MediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	LowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	DryRunStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563eb"))
	ApplyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#16a34a"))
)

// PriorityDot returns a colored dot for a priority level.
func PriorityDot(p types.Priority) string {
	switch p {
	case types.PriorityHigh:
		return HighStyle.Render("●")
	case types.PriorityMedium:
		return MediumStyle.Render("○")
	case types.PriorityLow:
		return LowStyle.Render("○")
	default:
		return Dim.Render("·")
	}
}

// PriorityLabel returns a styled, fixed-width priority label.
func PriorityLabel(p types.Priority) string {
	label := fmt.Sprintf("%-6s", strings.ToUpper(string(p)))
	switch p {
	case types.PriorityHigh:
		return HighStyle.Render(label)
	case types.PriorityMedium:
		return MediumStyle.Render(label)
	case types.PriorityLow:
		return LowStyle.Render(label)
	default:
		return label
	}
}

// ModeTag renders [DRY-RUN] or [APPLY].
func ModeTag(mode string) string {
	if mode == types.ModeApply {
		return ApplyStyle.Render("[APPLY]")
	}
	return DryRunStyle.Render("[DRY-RUN]")
}

// Decision prints the per-email report block.
func Decision(w io.Writer, mode string, e types.Email, d types.Decision) {
	subject := e.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	fmt.Fprintf(w, "\n%s %s from %s\n", ModeTag(mode), Bold.Render(fmt.Sprintf("%q", subject)), e.From)
	fmt.Fprintf(w, "  %s %s category=%s action=%s label=%s star=%t archive=%t\n",
		PriorityDot(d.Priority), PriorityLabel(d.Priority),
		d.Category, d.Action, orNone(d.Label), d.Star, d.Archive)
	fmt.Fprintf(w, "  %s %s\n", Muted.Render("reason:"), d.Reason)
}

// Failure prints the report block for an email that could not be triaged.
func Failure(w io.Writer, mode string, e types.Email, err error) {
	fmt.Fprintf(w, "\n%s %s from %s\n", ModeTag(mode), Bold.Render(fmt.Sprintf("%q", e.Subject)), e.From)
	fmt.Fprintf(w, "  %s %v\n", ErrStyle.Render("✗ triage failed:"), err)
}

// Summary prints the end-of-run counters.
func Summary(w io.Writer, s types.RunSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, Bold.Render("Done."))
	fmt.Fprintf(w, "  %s %s  %s %s\n", Muted.Render("run:"), s.RunID, Muted.Render("model:"), s.Model)
	fmt.Fprintf(w, "  fetched=%d triaged=%d failed=%d labeled=%d starred=%d archived=%d\n",
		s.Fetched, s.Triaged, s.Failed, s.Labeled, s.Starred, s.Archived)
	if s.AuditPath != "" {
		fmt.Fprintf(w, "  %s %s\n", Muted.Render("audit log:"), s.AuditPath)
	}
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// TimeAgo formats a timestamp as a relative time.
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}
