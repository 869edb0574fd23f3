package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/forum-agent/internal/domain"
)

type RenderOptions struct {
	Now time.Time
	// QuietAfter flags the stream when no event arrived for this long.
	QuietAfter time.Duration
}

func renderView(diag domain.Diagnostics, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Forum Agent"),
		s.header.Render(fmt.Sprintf("tasks: %d  journal: %d", len(diag.Tasks), diag.JournalItems)),
		s.section.Render(renderStream(diag, opts, s)),
		s.section.Render(renderSchedule(diag, opts, s)),
		s.section.Render(renderTasks(diag.Tasks, opts, s)),
	}

	if diag.LastError != "" {
		lines = append(lines, s.section.Render(s.warning.Render("last error: ")+s.detail.Render(diag.LastError)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderStream(diag domain.Diagnostics, opts RenderOptions, s styles) string {
	state := s.warning.Render("disconnected")
	if diag.Connected {
		state = s.ok.Render("connected")
	}

	self := "unknown"
	if diag.SelfID != nil {
		self = fmt.Sprint(*diag.SelfID)
	}

	lines := []string{
		s.heading.Render("Event stream"),
		field(s, "state", state),
		field(s, "bot user", s.detail.Render(self)),
		lipgloss.JoinHorizontal(lipgloss.Top,
			s.key.Render("success:"), " ",
			renderProgressBar(successPercent(diag), 20, s), " ",
			s.meta.Render(fmt.Sprintf("%d/%d connects, %d reconnects", diag.ConnectSuccesses, diag.ConnectAttempts, diag.Reconnects)),
		),
	}

	lastEvent := s.empty.Render("none yet")
	if diag.LastEventAt != nil {
		lastEvent = s.detail.Render(orDash(diag.LastEventType)) + " " + s.meta.Render("("+formatAgo(*diag.LastEventAt, opts.Now)+")")
		if quiet(diag, opts) {
			lastEvent += " " + s.warning.Render("[quiet]")
		}
	}
	lines = append(lines, field(s, "last event", lastEvent))

	if diag.LastDisconnectAt != nil || diag.LastDisconnectReason != "" {
		reason := s.detail.Render(orDash(diag.LastDisconnectReason))
		if diag.LastDisconnectAt != nil {
			reason += " " + s.meta.Render("("+formatAgo(*diag.LastDisconnectAt, opts.Now)+")")
		}
		lines = append(lines, field(s, "last disconnect", reason))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSchedule(diag domain.Diagnostics, opts RenderOptions, s styles) string {
	posting := s.empty.Render("disabled")
	if diag.PostingEnabled {
		posting = s.detail.Render(formatNext(diag.NextPostAt, opts.Now))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		s.heading.Render("Schedule"),
		field(s, "next browse", s.detail.Render(formatNext(diag.NextBrowseAt, opts.Now))),
		field(s, "next post", posting),
	)
}

func renderTasks(tasks []domain.TaskInfo, opts RenderOptions, s styles) string {
	lines := []string{s.heading.Render("Running tasks")}
	if len(tasks) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, s.empty.Render("No tasks running."))...)
	}

	for _, task := range tasks {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			s.detail.Render(task.Name),
			s.meta.Render("["+string(task.Kind)+"]"),
			s.meta.Render("since "+formatAgo(task.StartedAt, opts.Now)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderPostResult formats the outcome of one post cycle on a single line.
func RenderPostResult(result domain.PostResult) string {
	s := newStyles()

	var status string
	switch result.Status {
	case domain.PostStatusPosted:
		status = s.ok.Render(string(result.Status))
	case domain.PostStatusError:
		status = s.warning.Render(string(result.Status))
	default:
		status = s.meta.Render(string(result.Status))
	}

	parts := []string{status, s.detail.Render(result.Reason)}
	if result.Title != "" {
		parts = append(parts, s.key.Render(fmt.Sprintf("%q", result.Title)))
	}
	if result.Category != "" {
		parts = append(parts, s.meta.Render("in "+result.Category))
	}
	if result.ContentID != nil {
		parts = append(parts, s.meta.Render(fmt.Sprintf("(id %d)", *result.ContentID)))
	}
	if result.DryRun {
		parts = append(parts, s.warning.Render("[dry run]"))
	}
	return strings.Join(parts, " ")
}

// RenderJournal lists entries oldest first, which reads naturally in a
// terminal.
func RenderJournal(entries []domain.JournalEntry, now time.Time) string {
	s := newStyles()
	if len(entries) == 0 {
		return s.empty.Render("Journal is empty.")
	}

	lines := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		lines = append(lines, fmt.Sprintf("%s %s %s",
			s.meta.Render(formatStamp(entry.Timestamp, now)),
			s.key.Render(fmt.Sprintf("%-10s", entry.Kind)),
			s.detail.Render(entry.Content),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func field(s styles, key, value string) string {
	return s.key.Render(key+":") + " " + value
}

func successPercent(diag domain.Diagnostics) float64 {
	if diag.ConnectAttempts == 0 {
		return 0
	}
	return clampPercent(100 * float64(diag.ConnectSuccesses) / float64(diag.ConnectAttempts))
}

func quiet(diag domain.Diagnostics, opts RenderOptions) bool {
	if opts.Now.IsZero() || opts.QuietAfter <= 0 || diag.LastEventAt == nil {
		return false
	}
	return opts.Now.Sub(*diag.LastEventAt) > opts.QuietAfter
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	filled = max(0, min(width, filled))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatNext(at *time.Time, now time.Time) string {
	if at == nil {
		return "not scheduled"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}
	if !at.After(now) {
		return "due now"
	}
	return fmt.Sprintf("in %s (%s)", humanDuration(at.Sub(now)), formatStamp(*at, now))
}

func formatAgo(at, now time.Time) string {
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}
	if at.After(now) {
		return "just now"
	}
	return humanDuration(now.Sub(at)) + " ago"
}

func formatStamp(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := at.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return at.Format("15:04")
	}
	return at.Format("15:04 on 02 Jan")
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(math.Ceil(d.Hours()/24)))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
