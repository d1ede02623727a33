package notify

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para despachar códigos de verificación fuera de banda.
type Sender interface {
	SendOTP(ctx context.Context, destination string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("sender disabled")
	}
	return errors.New(s.reason)
}
