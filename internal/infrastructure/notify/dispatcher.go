package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Alert is a structured notification handed to the external dispatcher. The
// core decides that and to whom an alert is raised; delivery transport and
// wording live elsewhere.
type Alert struct {
	PatientID   string   `json:"patient_id"`
	CommandID   string   `json:"command_id,omitempty"`
	PatternType string   `json:"pattern_type"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	Recipients  []string `json:"recipients"`
}

// Notifier forwards alerts to the delivery pipeline
type Notifier interface {
	Dispatch(ctx context.Context, alert Alert) error
}

// LogNotifier records alerts in the log instead of delivering them. Stands
// in for the real dispatcher in dev and tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *LogNotifier) Dispatch(ctx context.Context, alert Alert) error {
	n.logger.Info().
		Str("patient_id", alert.PatientID).
		Str("pattern_type", alert.PatternType).
		Str("severity", alert.Severity).
		Int("recipients", len(alert.Recipients)).
		Msg("alert dispatched")
	return nil
}
