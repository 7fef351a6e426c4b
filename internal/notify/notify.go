// Package notify delivers outbound text messages: shared recommendations and
// routine reminders.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
)

// ErrInvalidRecipient is returned for recipients that are not phone numbers.
var ErrInvalidRecipient = errors.New("invalid recipient")

// minPhoneDigits is the shortest accepted canonical phone number.
const minPhoneDigits = 6

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Sender sends one text message to a canonical phone number.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// CanonicalPhone strips everything but digits from recipient and checks the
// result is long enough to be a phone number.
func CanonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := nonDigits.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("%w: %q is too short (minimum %d digits required)", ErrInvalidRecipient, canonical, minPhoneDigits)
	}
	if canonical != recipient {
		slog.Debug("notify.CanonicalPhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// LogSender only logs messages. It is the default when no transport is configured.
type LogSender struct{}

// SendMessage logs the message.
func (LogSender) SendMessage(ctx context.Context, to, body string) error {
	slog.Info("LogSender.SendMessage", "to", to, "body", body)
	return nil
}

// SentMessage is a message captured by MockSender.
type SentMessage struct {
	To   string
	Body string
}

// MockSender records messages instead of sending them.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// SendMessage records the message, or returns Err when set.
func (m *MockSender) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
