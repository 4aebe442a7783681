package conversation

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"sync"
)

// Stream replays the conversation after the cursor and then follows it live.
// Messages arrive in ascending (sentAt, id) order, each appended message once.
// The stream ends when ctx is done or the returned cancel is called.
func (s *Service) Stream(ctx context.Context, userID, conversationID string, from models.Cursor, fn func(models.MessageEvent)) (events.CancelFunc, error) {
	if _, err := s.openForRead(ctx, "Stream", conversationID, userID); err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		replaying = true
		buffered  []models.MessageEvent
	)
	unsubscribe := s.hub.Subscribe(conversationID, func(ev models.MessageEvent) {
		mu.Lock()
		defer mu.Unlock()
		if replaying {
			buffered = append(buffered, ev)
			return
		}
		fn(ev)
	})

	seen := map[string]struct{}{}
	cursor := from
	for {
		if err := ctx.Err(); err != nil {
			unsubscribe()
			return nil, err
		}
		page, err := s.repo.ListMessages(ctx, conversationID, cursor, config.MAX_HISTORY_LIMIT)
		if err != nil {
			unsubscribe()
			return nil, err
		}
		for _, m := range page {
			seen[m.ID] = struct{}{}
			fn(models.MessageEvent{Kind: models.MESSAGE_APPENDED, Message: m})
		}
		if len(page) < config.MAX_HISTORY_LIMIT {
			break
		}
		cursor = page[len(page)-1].Cursor()
	}

	mu.Lock()
	for _, ev := range buffered {
		if ev.Kind == models.MESSAGE_APPENDED {
			if _, ok := seen[ev.Message.ID]; ok {
				delete(seen, ev.Message.ID)
				continue
			}
		}
		fn(ev)
	}
	buffered = nil
	replaying = false
	mu.Unlock()

	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}
