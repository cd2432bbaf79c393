package email

import (
	"context"
	"errors"
	"time"
)

// Purpose identifica el motivo del correo con codigo OTP.
type Purpose string

const (
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
)

// Sender define la interfaz para envio de correos con codigos OTP.
type Sender interface {
	SendOTP(ctx context.Context, toEmail, displayName string, purpose Purpose, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTP(_ context.Context, _, _ string, _ Purpose, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
