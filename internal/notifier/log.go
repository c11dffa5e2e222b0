package notifier

import (
	"log/slog"

	"github.com/postly/scout/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes cycle summaries to the given logger as structured
// messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each cycle summary via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyCycle logs the cycle counters. Returns nil (stdout logging does not
// fail).
func (n *LogNotifier) NotifyCycle(source string, m model.Metrics) error {
	n.logger.Info("discovery cycle summary",
		"source", source,
		"found", m.Found,
		"cleaned", m.Cleaned,
		"duplicates", m.Duplicates,
		"embedded", m.Embedded,
		"stored", m.Stored,
		"errors", m.Errors,
		"elapsed", m.Elapsed.String(),
	)
	return nil
}
