package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crewcomms/src/types"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSubscribeAndCancel(t *testing.T) {
	h := NewHub[string]()
	var got []string
	cancel := h.Subscribe("u1", func(v string) { got = append(got, v) })
	h.Subscribe("u2", func(v string) { t.Fatalf("wrong key received %s", v) })

	assert.Equal(t, 1, h.Publish("u1", "a"))
	cancel()
	cancel()
	assert.Equal(t, 0, h.Publish("u1", "b"))
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 0, h.Subscribers("u1"))
	assert.Equal(t, 1, h.Subscribers("u2"))
}

func TestHubCancelInsideCallback(t *testing.T) {
	h := NewHub[int]()
	var cancel CancelFunc
	calls := 0
	cancel = h.Subscribe("k", func(int) {
		calls++
		cancel()
	})
	h.Publish("k", 1)
	h.Publish("k", 2)
	assert.Equal(t, 1, calls)
}

func TestHubConcurrentPublish(t *testing.T) {
	h := NewHub[int]()
	var mu sync.Mutex
	total := 0
	h.Subscribe("k", func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish("k", 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, total)
}

func TestLocalBus(t *testing.T) {
	log, hook := test.NewNullLogger()
	bus := NewLocalBus(log)
	var order []string
	bus.Handle(func(ctx context.Context, e Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	bus.Handle(func(ctx context.Context, e Event) error {
		order = append(order, "second")
		return nil
	})

	e := NewEvent(types.EVENT_MEMBER_JOINED, "c1", "u1", nil)
	require.NoError(t, bus.Publish(context.Background(), e))
	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestEventRoundTrip(t *testing.T) {
	e := NewEvent(types.EVENT_JOB_SHARED, "c1", "u1", map[string]string{"jobNotificationId": "j1"})
	b, err := e.Marshal()
	require.NoError(t, err)
	back, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, "j1", back.Data["jobNotificationId"])
}
