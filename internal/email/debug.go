package email

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// debugWriter logs raw protocol traffic. Nothing is shown until
// authentication has finished, so credentials never reach the log,
// whatever way the client frames the LOGIN command.
type debugWriter struct {
	logger   *slog.Logger
	revealed atomic.Bool
}

func newDebugWriter(logger *slog.Logger) *debugWriter {
	return &debugWriter{logger: logger}
}

// Write implements io.Writer
func (w *debugWriter) Write(p []byte) (int, error) {
	if !w.revealed.Load() {
		w.logger.Debug("imap traffic", "data", "[redacted during authentication]", "bytes", len(p))
		return len(p), nil
	}
	w.logger.Debug("imap traffic", "data", strings.TrimSpace(string(p)))
	return len(p), nil
}

func (w *debugWriter) reveal() {
	if w != nil {
		w.revealed.Store(true)
	}
}
