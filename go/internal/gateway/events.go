package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/search"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// Message is the envelope written to WebSocket clients.
type Message struct {
	ID        string          `json:"id"`
	Watch     string          `json:"watch,omitempty"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MessageType represents the type of gateway message
type MessageType string

const (
	MessageTypeState     MessageType = "state"
	MessageTypeCountdown MessageType = "countdown"
	MessageTypeReload    MessageType = "reload"
	MessageTypeSettled   MessageType = "settled"

	MessageTypeSearchResults MessageType = "search_results"
	MessageTypeSearchCleared MessageType = "search_cleared"
)

// WatchPayload carries a watch event to the browser.
type WatchPayload struct {
	State  *reconcile.State `json:"state,omitempty"`
	Text   string           `json:"text,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// ClientMessage is a command sent by the browser.
type ClientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

const clientMessageSearch = "search"

func newWatchMessage(ev watch.Event) (*Message, error) {
	data, err := json.Marshal(WatchPayload{State: ev.State, Text: ev.Text, Reason: ev.Reason})
	if err != nil {
		return nil, fmt.Errorf("marshal watch payload: %w", err)
	}
	return &Message{
		ID:        ev.ID.String(),
		Watch:     ev.Watch.String(),
		Type:      MessageType(ev.Type),
		Timestamp: ev.At,
		Data:      data,
	}, nil
}

func newSearchMessage(typ MessageType, results *search.Results, at time.Time) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: at,
	}
	if results != nil {
		data, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("marshal search results: %w", err)
		}
		msg.Data = data
	}
	return msg, nil
}
