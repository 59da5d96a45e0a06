package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/watch"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		key  watch.Key
		typ  watch.EventType
		want string
	}{
		{watch.Key{Kind: watch.KindContest, ID: "5"}, watch.EventTypeReload, "wykoj.watch.contest.5.reload"},
		{watch.Key{Kind: watch.KindSubmission, ID: "12"}, watch.EventTypeSettled, "wykoj.watch.submission.12.settled"},
		{watch.Key{Kind: watch.KindLeaderboard, ID: "a.b*c>"}, watch.EventTypeState, "wykoj.watch.leaderboard.a_b_c_.state"},
	}
	for _, tt := range tests {
		got := Subject("wykoj.watch", watch.Event{Watch: tt.key, Type: tt.typ})
		if got != tt.want {
			t.Errorf("Subject(%s, %s) = %q, want %q", tt.key, tt.typ, got, tt.want)
		}
	}
}

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := watch.Event{
		ID:     uuid.New(),
		Watch:  watch.Key{Kind: watch.KindContest, ID: "5"},
		Type:   watch.EventTypeReload,
		State:  &reconcile.State{Status: reconcile.StatusBefore, Target: at.Add(time.Hour)},
		Reason: "status changed",
		At:     at,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got.ID != ev.ID || got.Watch != ev.Watch || got.Type != ev.Type || got.Reason != ev.Reason {
		t.Errorf("DecodeEvent() = %+v, want %+v", got, ev)
	}
	if got.State == nil || !got.State.Target.Equal(ev.State.Target) {
		t.Errorf("State = %+v", got.State)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, data := range []string{`{`, `{"id":"00000000-0000-0000-0000-000000000000","type":"state"}`, `{"watch":"problem/1"}`} {
		if _, err := DecodeEvent([]byte(data)); err == nil {
			t.Errorf("DecodeEvent(%s) error = nil", data)
		}
	}
}

func TestConsumerForwardsToNotifier(t *testing.T) {
	var got []watch.Event
	c := &Consumer{target: watch.NotifierFunc(func(ctx context.Context, ev watch.Event) error {
		got = append(got, ev)
		return errors.New("ignored")
	})}

	data, _ := json.Marshal(watch.Event{ID: uuid.New(), Watch: watch.Key{Kind: watch.KindContest, ID: "1"}, Type: watch.EventTypeSettled})
	if err := c.processMessage(context.Background(), data); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if len(got) != 1 || got[0].Type != watch.EventTypeSettled {
		t.Errorf("forwarded = %+v", got)
	}
}
