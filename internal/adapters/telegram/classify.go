package telegram

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	"tpmb/internal/transport"
)

// classifyErr marks API errors that a retry cannot fix as permanent.
// Flood waits and transport hiccups stay retryable.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return err
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400, 401, 403, 404:
			// Malformed request, revoked token, kicked from chat, or
			// unknown chat: retrying sends the same thing again.
			return transport.Permanent(err)
		}
	}
	return err
}
