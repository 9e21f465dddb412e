package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

// TerminalFormatter renders snapshots for a terminal
type TerminalFormatter struct {
	width int
	now   func() time.Time

	header  lipgloss.Style
	subject lipgloss.Style
	meta    lipgloss.Style
	star    lipgloss.Style
	empty   lipgloss.Style
}

// NewTerminalFormatter creates a formatter that wraps at width columns
func NewTerminalFormatter(width int) *TerminalFormatter {
	if width <= 0 {
		width = 80
	}
	return &TerminalFormatter{
		width:   width,
		now:     time.Now,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		subject: lipgloss.NewStyle().Bold(true),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		star:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		empty:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
	}
}

// FormatSnapshot renders the snapshot of username's INBOX, newest first
func (f *TerminalFormatter) FormatSnapshot(username string, emails models.Snapshot) string {
	var sb strings.Builder

	sb.WriteString(f.header.Render(fmt.Sprintf("INBOX of %s (%d)", username, len(emails))))
	sb.WriteString("\n\n")

	if len(emails) == 0 {
		sb.WriteString(f.empty.Render("No messages"))
		sb.WriteString("\n")
		return sb.String()
	}

	for _, m := range emails {
		sb.WriteString(f.FormatSummary(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSummary renders one message as a subject line and a meta line
func (f *TerminalFormatter) FormatSummary(m models.MessageSummary) string {
	marker := "  "
	if m.Starred {
		marker = f.star.Render("★ ")
	}

	subject := f.subject.Render(f.truncate(m.Subject, f.width-2))
	meta := fmt.Sprintf("#%d  %s  %s", m.UID, f.truncate(m.From, f.width/2), humanize.RelTime(m.Time(), f.now(), "ago", "from now"))

	return marker + subject + "\n  " + f.meta.Render(meta)
}

// truncate truncates text to maxLen characters
func (f *TerminalFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 1 {
		maxLen = 10
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
