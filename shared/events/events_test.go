package events

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestProcessMessageDecodesEvent(t *testing.T) {
	payload, err := encodeEvent(TransferCompleted, TransferCompletedEvent{
		TransferID: "trf-001",
		From:       "parent-1",
		To:         "child-1",
		Amount:     decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}

	var got TransferCompletedEvent
	s := &Subscriber{handler: func(ctx context.Context, event Event) error {
		if event.Type != TransferCompleted {
			t.Errorf("expected type %s, got %s", TransferCompleted, event.Type)
		}
		return DecodeData(event, &got)
	}}

	msg := redis.XMessage{ID: "1-0", Values: map[string]any{"event": string(payload)}}
	if err := s.processMessage(context.Background(), msg); err != nil {
		t.Fatalf("processMessage: %v", err)
	}
	if got.From != "parent-1" || got.To != "child-1" || !got.Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestProcessMessageRejectsMalformed(t *testing.T) {
	s := &Subscriber{handler: func(ctx context.Context, event Event) error { return nil }}
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing event field", values: map[string]any{"other": "x"}},
		{name: "not json", values: map[string]any{"event": "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.processMessage(context.Background(), redis.XMessage{ID: "1-0", Values: tt.values})
			if !errors.Is(err, errMalformedMessage) {
				t.Errorf("expected errMalformedMessage, got %v", err)
			}
		})
	}
}

// ---- pending redelivery ----

type ackRecorder struct {
	acked []string
}

func (r *ackRecorder) ack(_ context.Context, id string) error {
	r.acked = append(r.acked, id)
	return nil
}

func eventMessage(t *testing.T, id, accountID string) redis.XMessage {
	t.Helper()
	payload, err := encodeEvent(DepositCompleted, DepositCompletedEvent{AccountID: accountID, Amount: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	return redis.XMessage{ID: id, Values: map[string]any{"event": string(payload)}}
}

// failingFor fails the handler for the listed accounts.
func failingFor(accounts ...string) Handler {
	return func(_ context.Context, event Event) error {
		var data DepositCompletedEvent
		if err := DecodeData(event, &data); err != nil {
			return err
		}
		for _, a := range accounts {
			if data.AccountID == a {
				return errors.New("store down")
			}
		}
		return nil
	}
}

func TestHandleMessagesLeavesFailuresPending(t *testing.T) {
	recorder := &ackRecorder{}
	s := &Subscriber{handler: failingFor("p2"), ack: recorder.ack}

	s.handleMessages(context.Background(), []redis.XMessage{
		eventMessage(t, "1-0", "p1"),
		eventMessage(t, "2-0", "p2"),
		{ID: "3-0", Values: map[string]any{"event": "{"}},
	})

	if want := []string{"1-0", "3-0"}; !reflect.DeepEqual(recorder.acked, want) {
		t.Errorf("expected acks %v, got %v", want, recorder.acked)
	}
}

func TestReclaimPendingRetriesIdleMessages(t *testing.T) {
	pages := map[string]struct {
		messages []redis.XMessage
		next     string
	}{
		"0-0": {messages: []redis.XMessage{eventMessage(t, "4-0", "p1"), eventMessage(t, "5-0", "p2")}, next: "6-0"},
		"6-0": {messages: []redis.XMessage{eventMessage(t, "6-0", "p3")}, next: "0-0"},
	}
	var starts []string
	recorder := &ackRecorder{}
	s := &Subscriber{
		handler: failingFor("p2"),
		ack:     recorder.ack,
		claim: func(_ context.Context, start string) ([]redis.XMessage, string, error) {
			starts = append(starts, start)
			page, ok := pages[start]
			if !ok {
				t.Fatalf("unexpected cursor %s", start)
			}
			return page.messages, page.next, nil
		},
	}

	if err := s.reclaimPending(context.Background()); err != nil {
		t.Fatalf("reclaimPending: %v", err)
	}
	if want := []string{"0-0", "6-0"}; !reflect.DeepEqual(starts, want) {
		t.Errorf("expected cursors %v, got %v", want, starts)
	}
	if want := []string{"4-0", "6-0"}; !reflect.DeepEqual(recorder.acked, want) {
		t.Errorf("expected acks %v, got %v", want, recorder.acked)
	}
}

func TestReclaimPendingReportsClaimErrors(t *testing.T) {
	s := &Subscriber{
		handler: failingFor(),
		ack:     (&ackRecorder{}).ack,
		claim: func(context.Context, string) ([]redis.XMessage, string, error) {
			return nil, "", errors.New("NOGROUP")
		},
	}
	if err := s.reclaimPending(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSubscriberDefaults(t *testing.T) {
	s := NewSubscriber(nil, SubscriberConfig{Group: "g", Consumer: "c", Stream: LedgerEventsStream})
	if s.batchSize != 10 || s.blockDuration != 5*time.Second || s.minIdle != 30*time.Second || s.reclaimInterval != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.ack == nil || s.claim == nil {
		t.Error("expected redis-backed ack and claim")
	}
}
