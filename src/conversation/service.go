// Package conversation stores crew channels and direct conversations and streams
// their messages in server-timestamp order.
package conversation

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
	CreateMessage(ctx context.Context, m *models.Message) (*models.Message, bool, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*models.Message, error)
	UpdateMessage(ctx context.Context, conversationID, messageID string, fn func(*models.Message) error) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, after models.Cursor, limit int) ([]*models.Message, error)
}

type Crews interface {
	Authorize(ctx context.Context, crewID, userID string, p types.Permission) error
	RequireMember(ctx context.Context, crewID, userID string) error
}

type Service struct {
	repo  Repository
	crews Crews
	bus   events.Publisher
	hub   *events.Hub[models.MessageEvent]
	log   logrus.FieldLogger
	now   func() time.Time

	// Appends to one conversation are stamped, stored and published under its lock.
	locksMu sync.Mutex
	locks   map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, crews Crews, bus events.Publisher, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		crews: crews,
		bus:   bus,
		hub:   events.NewHub[models.MessageEvent](),
		log:   log.WithField("component", "conversation"),
		now:   time.Now,
		locks: map[string]*conversationLock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lock(conversationID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &conversationLock{}
		s.locks[conversationID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, conversationID)
		}
		s.locksMu.Unlock()
	}
}

type SendInput struct {
	ConversationID   string
	SenderID         string
	Content          string
	Type             types.MessageType
	Attachments      []string
	ReplyToMessageID string
	// ClientMessageID makes the send idempotent per sender and conversation.
	ClientMessageID string
}

// Send appends a message. Without a ClientMessageID a retried send is stored twice.
// The repository may move SentAt forward so that stamps strictly increase per conversation;
// live subscribers see appends in the same order.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	const op = "Send"
	if in.SenderID == "" {
		return nil, types.ErrUnauthenticated
	}
	conv, err := s.openForWrite(ctx, op, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, op, &in); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if in.ClientMessageID != "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(conv.ID+"|"+in.SenderID+"|"+in.ClientMessageID)).String()
	}
	m := &models.Message{
		ID:               id,
		ConversationID:   conv.ID,
		CrewID:           conv.CrewID,
		SenderID:         in.SenderID,
		Content:          in.Content,
		Type:             in.Type,
		Reactions:        map[string]string{},
		ReadBy:           map[string]time.Time{},
		ReplyToMessageID: in.ReplyToMessageID,
		Attachments:      in.Attachments,
		ClientMessageID:  in.ClientMessageID,
	}
	stored, created, err := s.appendMessage(ctx, m)
	if err != nil {
		return nil, sendFailed(op, err)
	}
	if !created {
		return stored, nil
	}

	if conv.Kind == types.CONVERSATION_CREW {
		e := events.NewEvent(types.EVENT_MESSAGE_SENT, conv.CrewID, in.SenderID, map[string]string{
			"conversationId": conv.ID,
			"messageId":      stored.ID,
			"preview":        preview(stored),
		})
		if err := s.bus.Publish(ctx, e); err != nil {
			s.log.WithFields(logrus.Fields{"crew_id": conv.CrewID, "message_id": stored.ID}).WithError(err).Warn("messageSent publish failed")
		}
	}
	return stored, nil
}

// appendMessage stamps, stores and publishes m while holding the conversation lock.
func (s *Service) appendMessage(ctx context.Context, m *models.Message) (*models.Message, bool, error) {
	unlock := s.lock(m.ConversationID)
	defer unlock()
	m.SentAt = s.now().UTC()
	stored, created, err := s.repo.CreateMessage(ctx, m)
	if err != nil || !created {
		return stored, created, err
	}
	s.hub.Publish(m.ConversationID, models.MessageEvent{Kind: models.MESSAGE_APPENDED, Message: stored})
	return stored, true, nil
}

func sendFailed(op string, err error) error {
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrPermissionDenied) {
		return err
	}
	return types.WrapError(types.KIND_SEND_FAILED, op, err)
}

func (s *Service) validate(ctx context.Context, op string, in *SendInput) error {
	if in.Type == "" {
		in.Type = types.MESSAGE_TEXT
	}
	if !in.Type.Valid() {
		return types.ValidationFailed(op, "unknown message type %q", in.Type)
	}
	if utf8.RuneCountInString(in.Content) > config.MAX_MESSAGE_LENGTH {
		return types.ValidationFailed(op, "message must be at most %d characters", config.MAX_MESSAGE_LENGTH)
	}
	if in.Type == types.MESSAGE_TEXT && strings.TrimSpace(in.Content) == "" {
		return types.ValidationFailed(op, "message is empty")
	}
	if in.Type.NeedsAttachment() && len(in.Attachments) == 0 {
		return types.ValidationFailed(op, "%s messages need an attachment", in.Type)
	}
	if in.ReplyToMessageID != "" {
		if _, err := s.repo.GetMessage(ctx, in.ConversationID, in.ReplyToMessageID); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return types.ValidationFailed(op, "reply target does not exist")
			}
			return err
		}
	}
	return nil
}

// openForWrite resolves the conversation and checks the user may post to it.
// Crew channels are created on first use.
func (s *Service) openForWrite(ctx context.Context, op, conversationID, userID string) (*models.Conversation, error) {
	kind, crewID, ok := models.ParseConversationID(conversationID)
	if !ok {
		return nil, types.NotFound(op, "conversation", conversationID)
	}
	if kind == types.CONVERSATION_CREW {
		if err := s.crews.Authorize(ctx, crewID, userID, types.PERM_SEND_MESSAGES); err != nil {
			return nil, err
		}
		return s.crewChannel(ctx, crewID)
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "not a participant")
	}
	return conv, nil
}

// CanPost fails unless userID may write to the conversation.
func (s *Service) CanPost(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	_, err := s.openForWrite(ctx, "CanPost", conversationID, userID)
	return err
}

// openForRead checks the user may read the conversation.
func (s *Service) openForRead(ctx context.Context, op, conversationID, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	kind, crewID, ok := models.ParseConversationID(conversationID)
	if !ok {
		return nil, types.NotFound(op, "conversation", conversationID)
	}
	if kind == types.CONVERSATION_CREW {
		if err := s.crews.RequireMember(ctx, crewID, userID); err != nil {
			return nil, err
		}
		return s.crewChannel(ctx, crewID)
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "not a participant")
	}
	return conv, nil
}

func (s *Service) crewChannel(ctx context.Context, crewID string) (*models.Conversation, error) {
	now := s.now().UTC()
	return s.repo.CreateConversation(ctx, &models.Conversation{
		ID:        models.CrewConversationID(crewID),
		Kind:      types.CONVERSATION_CREW,
		CrewID:    crewID,
		CreatedAt: now,
	})
}

// OpenDirect returns the direct conversation between two users, creating it if needed.
func (s *Service) OpenDirect(ctx context.Context, userID, otherID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	if otherID == "" || otherID == userID {
		return nil, types.ValidationFailed("OpenDirect", "pick someone else to message")
	}
	return s.repo.CreateConversation(ctx, &models.Conversation{
		ID:             models.DirectConversationID(userID, otherID),
		Kind:           types.CONVERSATION_DIRECT,
		ParticipantIDs: []string{userID, otherID},
		CreatedAt:      s.now().UTC(),
	})
}

// MarkRead records the first time userID read the message. Later calls keep the first timestamp.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID, messageID string) (*models.Message, error) {
	const op = "MarkRead"
	if _, err := s.openForRead(ctx, op, conversationID, userID); err != nil {
		return nil, err
	}
	changed := false
	m, err := s.repo.UpdateMessage(ctx, conversationID, messageID, func(m *models.Message) error {
		if m.ConversationID != conversationID {
			return types.NewError(types.KIND_CONFLICT, op, "message belongs to another conversation")
		}
		if m.IsReadBy(userID) {
			return nil
		}
		if m.ReadBy == nil {
			m.ReadBy = map[string]time.Time{}
		}
		m.ReadBy[userID] = s.now().UTC()
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.hub.Publish(conversationID, models.MessageEvent{Kind: models.MESSAGE_UPDATED, Message: m})
	}
	return m, nil
}

// AddReaction toggles the user's reaction. The same emoji twice removes it; a different emoji replaces it.
func (s *Service) AddReaction(ctx context.Context, conversationID, userID, messageID, emoji string) (*models.Message, error) {
	const op = "AddReaction"
	if strings.TrimSpace(emoji) == "" {
		return nil, types.ValidationFailed(op, "reaction is empty")
	}
	if _, err := s.openForRead(ctx, op, conversationID, userID); err != nil {
		return nil, err
	}
	m, err := s.repo.UpdateMessage(ctx, conversationID, messageID, func(m *models.Message) error {
		if m.ConversationID != conversationID {
			return types.NewError(types.KIND_CONFLICT, op, "message belongs to another conversation")
		}
		if m.Reactions == nil {
			m.Reactions = map[string]string{}
		}
		if m.Reactions[userID] == emoji {
			delete(m.Reactions, userID)
		} else {
			m.Reactions[userID] = emoji
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.Publish(conversationID, models.MessageEvent{Kind: models.MESSAGE_UPDATED, Message: m})
	return m, nil
}

type Page struct {
	Messages   []*models.Message `json:"messages"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// History returns messages after the cursor, oldest first.
func (s *Service) History(ctx context.Context, conversationID, userID string, after models.Cursor, limit int) (*Page, error) {
	if _, err := s.openForRead(ctx, "History", conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.DEFAULT_HISTORY_LIMIT
	}
	if limit > config.MAX_HISTORY_LIMIT {
		limit = config.MAX_HISTORY_LIMIT
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID, after, limit)
	if err != nil {
		return nil, err
	}
	page := &Page{Messages: msgs}
	if len(msgs) == limit {
		page.NextCursor = msgs[len(msgs)-1].Cursor().Encode()
	}
	return page, nil
}

func preview(m *models.Message) string {
	if m.Content == "" {
		return string(m.Type)
	}
	r := []rune(m.Content)
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return m.Content
}
