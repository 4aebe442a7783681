package memory

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"sync"
	"time"
)

type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string]map[string]*models.Message
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: map[string]*models.Conversation{},
		messages:      map[string]map[string]*models.Message{},
	}
}

func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, types.NotFound("GetConversation", "conversation", id)
	}
	return cloneConversation(c), nil
}

// CreateConversation stores c unless a conversation with the same id exists, and returns the stored one.
func (r *ConversationRepository) CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conversations[c.ID]; ok {
		return cloneConversation(existing), nil
	}
	r.conversations[c.ID] = cloneConversation(c)
	return cloneConversation(c), nil
}

// CreateMessage inserts m stamped after the conversation's last message.
// If a message with the same id exists it is returned with created=false.
func (r *ConversationRepository) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[m.ConversationID]
	if !ok {
		return nil, false, types.NotFound("CreateMessage", "conversation", m.ConversationID)
	}
	if r.messages[m.ConversationID] == nil {
		r.messages[m.ConversationID] = map[string]*models.Message{}
	}
	if existing, ok := r.messages[m.ConversationID][m.ID]; ok {
		return cloneMessage(existing), false, nil
	}
	stored := cloneMessage(m)
	stored.SentAt = models.NextSentAt(m.SentAt, conv.LastMessageAt)
	r.messages[m.ConversationID][m.ID] = stored
	conv.LastMessageAt = stored.SentAt
	conv.LastMessage = models.Preview(m.Content)
	return cloneMessage(stored), true, nil
}

func (r *ConversationRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[conversationID][messageID]
	if !ok {
		return nil, types.NotFound("GetMessage", "message", messageID)
	}
	return cloneMessage(m), nil
}

func (r *ConversationRepository) UpdateMessage(ctx context.Context, conversationID, messageID string, fn func(*models.Message) error) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[conversationID][messageID]
	if !ok {
		return nil, types.NotFound("UpdateMessage", "message", messageID)
	}
	c := cloneMessage(m)
	if err := fn(c); err != nil {
		return nil, err
	}
	r.messages[conversationID][messageID] = c
	return cloneMessage(c), nil
}

// ListMessages returns up to limit messages strictly after the cursor, oldest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, after models.Cursor, limit int) ([]*models.Message, error) {
	r.mu.RLock()
	all := make([]*models.Message, 0, len(r.messages[conversationID]))
	for _, m := range r.messages[conversationID] {
		if after.IsZero() || after.Before(m.Cursor()) {
			all = append(all, cloneMessage(m))
		}
	}
	r.mu.RUnlock()

	models.SortMessages(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	return &out
}

func cloneMessage(m *models.Message) *models.Message {
	out := *m
	out.Attachments = append([]string(nil), m.Attachments...)
	out.Reactions = make(map[string]string, len(m.Reactions))
	for k, v := range m.Reactions {
		out.Reactions[k] = v
	}
	out.ReadBy = make(map[string]time.Time, len(m.ReadBy))
	for k, v := range m.ReadBy {
		out.ReadBy[k] = v
	}
	return &out
}
