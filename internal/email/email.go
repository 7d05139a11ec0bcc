package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
)

// ConfirmationData fills the registration confirmation template.
type ConfirmationData struct {
	Name       string
	EventTitle string
	EventDate  string
	StartTime  string
	Location   string
}

// Sender delivers one rendered message. The resend implementation is the
// only production sender; tests swap in a recorder.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Service renders and sends transactional mail. When disabled (no API key
// configured, typical in development) it logs the would-be send and reports
// success so callers never branch on mail configuration.
type Service struct {
	sender  Sender
	enabled bool
	logger  zerolog.Logger
}

func NewService(sender Sender, enabled bool, logger zerolog.Logger) *Service {
	return &Service{
		sender:  sender,
		enabled: enabled,
		logger:  logger.With().Str("component", "email").Logger(),
	}
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #1a1a1a;">
    <h2>You're in, {{.Name}}!</h2>
    <p>Your spot for <strong>{{.EventTitle}}</strong> is confirmed.</p>
    <table cellpadding="4">
      <tr><td>Date</td><td>{{.EventDate}}</td></tr>
      {{if .StartTime}}<tr><td>Starts</td><td>{{.StartTime}}</td></tr>{{end}}
      <tr><td>Where</td><td>{{.Location}}</td></tr>
    </table>
    <p>See you there.</p>
  </body>
</html>`))

// SendConfirmation renders and delivers a registration confirmation.
func (s *Service) SendConfirmation(ctx context.Context, to string, data ConfirmationData) error {
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	subject := "Registration confirmed: " + data.EventTitle

	if !s.enabled {
		s.logger.Info().Str("to", to).Str("subject", subject).Msg("email disabled, skipping send")
		return nil
	}
	if err := s.sender.Send(ctx, to, subject, body.String()); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}
