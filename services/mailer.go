package services

import (
	"context"
	"log/slog"
)

// LogMailer writes outgoing mail to the log instead of delivering it. It is
// the default when no mail transport is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail not delivered, no transport configured",
		"component", "mailer", "to", to, "subject", subject, "body", body)
	return nil
}
