package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wykoj/livewatch/go/internal/reconcile"
)

// Kind is the type of resource a watch follows.
type Kind string

const (
	KindContest     Kind = "contest"
	KindSubmission  Kind = "submission"
	KindLeaderboard Kind = "leaderboard"
)

func (k Kind) Valid() bool {
	switch k {
	case KindContest, KindSubmission, KindLeaderboard:
		return true
	}
	return false
}

// Key identifies one watch, rendered as "kind/id".
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.ID
}

func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, "/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return Key{}, fmt.Errorf("invalid watch key %q", s)
	}
	k := Key{Kind: Kind(kind), ID: id}
	if !k.Kind.Valid() {
		return Key{}, fmt.Errorf("invalid watch kind %q", kind)
	}
	return k, nil
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EventType represents the type of watch event
type EventType string

const (
	EventTypeState     EventType = "state"
	EventTypeCountdown EventType = "countdown"
	EventTypeReload    EventType = "reload"
	EventTypeSettled   EventType = "settled"
)

// Event is emitted by sessions to every notifier.
type Event struct {
	ID     uuid.UUID        `json:"id"`
	Watch  Key              `json:"watch"`
	Type   EventType        `json:"type"`
	State  *reconcile.State `json:"state,omitempty"`
	Text   string           `json:"text,omitempty"`
	Reason string           `json:"reason,omitempty"`
	At     time.Time        `json:"at"`
}

func newEvent(key Key, typ EventType, at time.Time) Event {
	return Event{
		ID:    uuid.New(),
		Watch: key,
		Type:  typ,
		At:    at,
	}
}
