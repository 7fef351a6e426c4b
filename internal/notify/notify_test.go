package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/SkinPipe/internal/store"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"15551234567", "15551234567", false},
		{"whatsapp:+44 7700 900123", "447700900123", false},
		{"", "", true},
		{"call me", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalPhone(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRecipient) {
				t.Errorf("CanonicalPhone(%q) error = %v, want ErrInvalidRecipient", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CanonicalPhone(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestMockSender(t *testing.T) {
	m := NewMockSender()
	if err := m.SendMessage(context.Background(), "15551234567", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	m.Err = errors.New("down")
	if err := m.SendMessage(context.Background(), "15551234567", "again"); err == nil {
		t.Error("expected configured error")
	}
	if sent := m.Sent(); len(sent) != 1 || sent[0].Body != "hi" {
		t.Errorf("sent = %+v", sent)
	}
}

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSender_Address(t *testing.T) {
	tests := []struct {
		from   string
		wantTo string
	}{
		{"whatsapp:+14155238886", "whatsapp:+15551234567"},
		{"+14155238886", "+15551234567"},
	}
	for _, tt := range tests {
		fc := &fakeCreator{}
		s := &TwilioSender{api: fc, from: tt.from}
		if err := s.SendMessage(context.Background(), "15551234567", "Time for your AM skincare routine!"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		p := fc.params[0]
		if *p.To != tt.wantTo || *p.From != tt.from || *p.Body != "Time for your AM skincare routine!" {
			t.Errorf("params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
		}
	}
}

func TestTwilioSender_Error(t *testing.T) {
	s := &TwilioSender{api: &fakeCreator{err: errors.New("401")}, from: "+1"}
	if err := s.SendMessage(context.Background(), "15551234567", "x"); err == nil {
		t.Error("expected error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendMessage(ctx, "15551234567", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewTwilioSender_MissingConfig(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioSender(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewTwilioSender(WithAccountSID("AC1"), WithAuthToken("tok")); !errors.Is(err, ErrMissingFrom) {
		t.Errorf("expected ErrMissingFrom, got %v", err)
	}
	s, err := NewTwilioSender(WithAccountSID("AC1"), WithAuthToken("tok"), WithFrom("+14155238886"))
	if err != nil || s == nil {
		t.Errorf("NewTwilioSender = %v, %v", s, err)
	}
}

func TestDispatcher_Direct(t *testing.T) {
	mock := NewMockSender()
	d := NewDispatcher(mock, nil, 0)
	if d.Queued() {
		t.Error("dispatcher without outbox reports queued")
	}
	id, err := d.Send(context.Background(), Message{Kind: store.OutboxKindShare, To: "+1 555 123 4567", Body: "combo"})
	if err != nil || id != "" {
		t.Fatalf("Send = %q, %v", id, err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("sent = %+v", sent)
	}
	if _, err := d.Send(context.Background(), Message{To: "abc"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
	if n := d.Flush(context.Background()); n != 0 {
		t.Errorf("Flush without outbox = %d", n)
	}
}

func TestDispatcher_Outbox(t *testing.T) {
	mock := NewMockSender()
	st := store.NewInMemoryStore()
	d := NewDispatcher(mock, st, 0)
	ctx := context.Background()

	msg := Message{Kind: store.OutboxKindReminder, To: "15551234567", Body: "Time for your PM skincare routine!", DedupeKey: "reminder:alice:pm:2026-10-19"}
	id1, err := d.Send(ctx, msg)
	if err != nil || id1 == "" {
		t.Fatalf("Send = %q, %v", id1, err)
	}
	id2, _ := d.Send(ctx, msg)
	if id2 != id1 {
		t.Errorf("duplicate reminder enqueued: %s vs %s", id1, id2)
	}
	if len(mock.Sent()) != 0 {
		t.Error("queued message sent before flush")
	}
	if n := d.Flush(ctx); n != 1 {
		t.Fatalf("Flush claimed %d, want 1", n)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].Body != msg.Body {
		t.Errorf("sent = %+v", sent)
	}
	got, _ := st.GetOutboxMessage(id1)
	if got == nil || got.Status != store.OutboxStatusSent {
		t.Errorf("outbox message = %+v", got)
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(NewMockSender(), store.NewInMemoryStore(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
