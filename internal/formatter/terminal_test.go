package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/pkg/models"
)

func fixedFormatter(width int) *TerminalFormatter {
	f := NewTerminalFormatter(width)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	return f
}

func TestFormatSnapshot(t *testing.T) {
	f := fixedFormatter(80)
	emails := models.Snapshot{
		{UID: 12, Subject: "Exam schedule", From: "Registrar <reg@example.edu>",
			Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli(), Starred: true},
		{UID: 11, Subject: models.NoSubject, From: models.UnknownSender,
			Timestamp: time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC).UnixMilli()},
	}

	out := f.FormatSnapshot("e2250001", emails)

	for _, want := range []string{"e2250001", "(2)", "Exam schedule", "#12", "Registrar <reg@example.edu>", "2 hours ago", "★", "#11", "(no subject)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "#12") > strings.Index(out, "#11") {
		t.Error("snapshot order not preserved")
	}
}

func TestFormatSnapshotEmpty(t *testing.T) {
	out := fixedFormatter(80).FormatSnapshot("e2250001", nil)
	if !strings.Contains(out, "No messages") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTruncate(t *testing.T) {
	f := fixedFormatter(80)
	if got := f.truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := f.truncate("Öğrenci İşleri Daire Başkanlığı", 8); got != "Öğrenci…" {
		t.Errorf("truncate = %q", got)
	}
}
