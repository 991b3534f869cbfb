package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

type recordingSMSSender struct {
	mu   sync.Mutex
	sent []SentMessage
	err  error
}

func (r *recordingSMSSender) SendMessage(ctx context.Context, to string, body string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.sent = append(r.sent, SentMessage{To: to, Body: body})
	r.mu.Unlock()
	return nil
}

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioSMSService(&recordingSMSSender{})

	tests := []struct {
		name      string
		recipient string
		want      string
		wantErr   bool
	}{
		{name: "plain digits", recipient: "15550100001", want: "15550100001"},
		{name: "formatted number", recipient: "+1 (555) 010-0001", want: "15550100001"},
		{name: "dotted number", recipient: "1.555.010.0001", want: "15550100001"},
		{name: "empty", recipient: "", wantErr: true},
		{name: "no digits", recipient: "not-a-number", wantErr: true},
		{name: "too short", recipient: "12345", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateAndCanonicalizeRecipient(tt.recipient)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("canonical = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendMessageEmitsSentReceipt(t *testing.T) {
	sender := &recordingSMSSender{}
	svc := NewTwilioSMSService(sender)

	if err := svc.SendMessage(context.Background(), "+1 (555) 010-0001", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "15550100001" {
		t.Fatalf("sender calls = %+v", sender.sent)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.To != "15550100001" || receipt.Status != models.MessageStatusSent {
			t.Errorf("receipt = %+v", receipt)
		}
	default:
		t.Error("no receipt emitted")
	}
}

func TestSendMessageAfterStop(t *testing.T) {
	svc := NewTwilioSMSService(&recordingSMSSender{})
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "15550100001", "hello"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("err = %v, want ErrServiceStopped", err)
	}
	// Second stop is a no-op.
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestHandleInboundPayload(t *testing.T) {
	svc := NewTwilioSMSService(&recordingSMSSender{})

	payload := []byte("From=%2B15550100001&Body=I+can+do+2%3A15")
	if err := svc.HandleInboundPayload(payload); err != nil {
		t.Fatalf("HandleInboundPayload: %v", err)
	}

	select {
	case msg := <-svc.Responses():
		if msg.From != "15550100001" {
			t.Errorf("From = %q, want canonical digits", msg.From)
		}
		if msg.Body != "I can do 2:15" {
			t.Errorf("Body = %q", msg.Body)
		}
	default:
		t.Fatal("no inbound message forwarded")
	}

	if err := svc.HandleInboundPayload([]byte("Body=missing+sender")); err == nil {
		t.Error("payload without From accepted")
	}
}

func TestHandleStatusPayload(t *testing.T) {
	svc := NewTwilioSMSService(&recordingSMSSender{})

	if err := svc.HandleStatusPayload([]byte("To=%2B15550100001&MessageStatus=delivered")); err != nil {
		t.Fatalf("HandleStatusPayload: %v", err)
	}
	select {
	case receipt := <-svc.Receipts():
		if receipt.Status != models.MessageStatusDelivered {
			t.Errorf("status = %q, want delivered", receipt.Status)
		}
	default:
		t.Fatal("no receipt forwarded")
	}

	// Unknown statuses are dropped without error.
	if err := svc.HandleStatusPayload([]byte("To=%2B15550100001&MessageStatus=queued")); err != nil {
		t.Errorf("unknown status rejected: %v", err)
	}
	select {
	case receipt := <-svc.Receipts():
		t.Errorf("unexpected receipt for unknown status: %+v", receipt)
	default:
	}
}
