package models

import (
	"crewcomms/src/types"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Conversation is stored at conversations/{conversationId}.
type Conversation struct {
	ID             string                 `json:"id" firestore:"id"`
	Kind           types.ConversationKind `json:"kind" firestore:"kind"`
	CrewID         string                 `json:"crewId,omitempty" firestore:"crewId,omitempty"`
	ParticipantIDs []string               `json:"participantIds,omitempty" firestore:"participantIds,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" firestore:"createdAt"`
	LastMessageAt  time.Time              `json:"lastMessageAt" firestore:"lastMessageAt"`
	LastMessage    string                 `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
}

func (c *Conversation) IsParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Preview truncates content for conversation summaries.
func Preview(content string) string {
	r := []rune(content)
	if len(r) > 80 {
		return string(r[:80])
	}
	return content
}

// NextSentAt stamps a message appended after last: the proposed time at the store's
// microsecond precision, moved just past last when it would not sort after it.
func NextSentAt(proposed, last time.Time) time.Time {
	t := proposed.UTC().Truncate(time.Microsecond)
	if !t.After(last) {
		t = last.UTC().Add(time.Microsecond)
	}
	return t
}

func CrewConversationID(crewID string) string {
	return "crew_" + crewID
}

// DirectConversationID is symmetric in its arguments.
func DirectConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}

// ParseConversationID returns the kind and, for crew channels, the crew id.
func ParseConversationID(id string) (types.ConversationKind, string, bool) {
	switch {
	case strings.HasPrefix(id, "crew_") && len(id) > len("crew_"):
		return types.CONVERSATION_CREW, strings.TrimPrefix(id, "crew_"), true
	case strings.HasPrefix(id, "dm_"):
		return types.CONVERSATION_DIRECT, "", true
	}
	return "", "", false
}

// Message is stored at conversations/{conversationId}/messages/{messageId}.
// Only Reactions and ReadBy change after the message is written.
type Message struct {
	ID               string               `json:"id" firestore:"id"`
	ConversationID   string               `json:"conversationId" firestore:"conversationId"`
	CrewID           string               `json:"crewId,omitempty" firestore:"crewId,omitempty"`
	SenderID         string               `json:"senderId" firestore:"senderId"`
	Content          string               `json:"content" firestore:"content"`
	Type             types.MessageType    `json:"type" firestore:"type"`
	SentAt           time.Time            `json:"sentAt" firestore:"sentAt"`
	Reactions        map[string]string    `json:"reactions" firestore:"reactions"`
	ReadBy           map[string]time.Time `json:"readBy" firestore:"readBy"`
	ReplyToMessageID string               `json:"replyToMessageId,omitempty" firestore:"replyToMessageId,omitempty"`
	Attachments      []string             `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	ClientMessageID  string               `json:"clientMessageId,omitempty" firestore:"clientMessageId,omitempty"`
}

func (m *Message) Cursor() Cursor {
	return Cursor{SentAt: m.SentAt, ID: m.ID}
}

func (m *Message) IsReadBy(userID string) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

// SortMessages orders by SentAt then ID.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Cursor().Before(msgs[j].Cursor())
	})
}

// Cursor marks a position in a conversation. The zero cursor is before every message.
type Cursor struct {
	SentAt time.Time
	ID     string
}

var ErrInvalidCursor = errors.New("invalid cursor")

func (c Cursor) IsZero() bool {
	return c.SentAt.IsZero() && c.ID == ""
}

func (c Cursor) Before(o Cursor) bool {
	if !c.SentAt.Equal(o.SentAt) {
		return c.SentAt.Before(o.SentAt)
	}
	return c.ID < o.ID
}

func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(c.SentAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{SentAt: time.Unix(0, n).UTC(), ID: id}, nil
}

type MessageEventKind string

const (
	MESSAGE_APPENDED MessageEventKind = "appended"
	MESSAGE_UPDATED  MessageEventKind = "updated"
)

// MessageEvent is what conversation streams deliver.
type MessageEvent struct {
	Kind    MessageEventKind `json:"kind"`
	Message *Message         `json:"message"`
}
