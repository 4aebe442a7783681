package events

import (
	"context"
	"crewcomms/src/types"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is the crew event envelope. RecipientID narrows delivery to one member.
type Event struct {
	ID          string              `json:"id"`
	Type        types.CrewEventType `json:"type"`
	CrewID      string              `json:"crewId"`
	ActorID     string              `json:"actorId,omitempty"`
	RecipientID string              `json:"recipientId,omitempty"`
	IsImportant bool                `json:"isImportant,omitempty"`
	OccurredAt  time.Time           `json:"occurredAt"`
	Data        map[string]string   `json:"data,omitempty"`
}

func NewEvent(t types.CrewEventType, crewID, actorID string, data map[string]string) Event {
	if data == nil {
		data = map[string]string{}
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		CrewID:     crewID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

// Publisher emits crew events. Implementations must keep per-crew order.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler func(ctx context.Context, e Event) error

// LocalBus delivers events synchronously to registered handlers, in registration order.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
	log      logrus.FieldLogger
}

func NewLocalBus(log logrus.FieldLogger) *LocalBus {
	return &LocalBus{log: log}
}

func (b *LocalBus) Handle(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish never fails the producer; handler errors are logged.
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			b.log.WithFields(logrus.Fields{
				"event_id":   e.ID,
				"event_type": e.Type,
				"crew_id":    e.CrewID,
			}).WithError(err).Warn("[Bus] handler failed")
		}
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
