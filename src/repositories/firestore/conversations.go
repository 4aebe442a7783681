package firestore

import (
	"context"
	"crewcomms/src/conversation"
	"crewcomms/src/models"
	"crewcomms/src/types"

	"cloud.google.com/go/firestore"
)

var _ conversation.Repository = (*ConversationRepositoryFS)(nil)

type ConversationRepositoryFS struct {
	Client *firestore.Client
}

func NewConversationRepositoryFS(client *firestore.Client) *ConversationRepositoryFS {
	return &ConversationRepositoryFS{Client: client}
}

func (r *ConversationRepositoryFS) conv(id string) *firestore.DocumentRef {
	return r.Client.Collection(colConversations).Doc(id)
}

func (r *ConversationRepositoryFS) msg(conversationID, id string) *firestore.DocumentRef {
	return r.conv(conversationID).Collection(colMessages).Doc(id)
}

func (r *ConversationRepositoryFS) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	snap, err := r.conv(id).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetConversation", "conversation", id)
	}
	if err != nil {
		return nil, translate("GetConversation", err)
	}
	var c models.Conversation
	if err := snap.DataTo(&c); err != nil {
		return nil, translate("GetConversation", err)
	}
	return &c, nil
}

// CreateConversation is create-if-absent; the stored document is returned either way.
func (r *ConversationRepositoryFS) CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	var out models.Conversation
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.conv(c.ID))
		if err == nil {
			return snap.DataTo(&out)
		}
		if !isNotFound(err) {
			return err
		}
		out = *c
		return tx.Create(r.conv(c.ID), c)
	})
	if err != nil {
		return nil, translate("CreateConversation", err)
	}
	return &out, nil
}

// CreateMessage writes m and bumps the conversation summary. The transaction reads the
// conversation, so concurrent appends from any instance get strictly increasing stamps.
// An existing id returns created=false.
func (r *ConversationRepositoryFS) CreateMessage(ctx context.Context, m *models.Message) (*models.Message, bool, error) {
	var stored models.Message
	created := false
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		convSnap, err := tx.Get(r.conv(m.ConversationID))
		if isNotFound(err) {
			return types.NotFound("CreateMessage", "conversation", m.ConversationID)
		}
		if err != nil {
			return err
		}
		existing, err := tx.Get(r.msg(m.ConversationID, m.ID))
		if err == nil {
			return existing.DataTo(&stored)
		}
		if !isNotFound(err) {
			return err
		}
		var c models.Conversation
		if err := convSnap.DataTo(&c); err != nil {
			return err
		}
		stamped := *m
		stamped.SentAt = models.NextSentAt(m.SentAt, c.LastMessageAt)
		if err := tx.Create(r.msg(m.ConversationID, m.ID), &stamped); err != nil {
			return err
		}
		err = tx.Update(r.conv(m.ConversationID), []firestore.Update{
			{Path: "lastMessageAt", Value: stamped.SentAt},
			{Path: "lastMessage", Value: models.Preview(m.Content)},
		})
		if err != nil {
			return err
		}
		stored = stamped
		created = true
		return nil
	})
	if err != nil {
		return nil, false, translate("CreateMessage", err)
	}
	return &stored, created, nil
}

func (r *ConversationRepositoryFS) GetMessage(ctx context.Context, conversationID, messageID string) (*models.Message, error) {
	snap, err := r.msg(conversationID, messageID).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetMessage", "message", messageID)
	}
	if err != nil {
		return nil, translate("GetMessage", err)
	}
	var m models.Message
	if err := snap.DataTo(&m); err != nil {
		return nil, translate("GetMessage", err)
	}
	return &m, nil
}

func (r *ConversationRepositoryFS) UpdateMessage(ctx context.Context, conversationID, messageID string, fn func(*models.Message) error) (*models.Message, error) {
	var out models.Message
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.msg(conversationID, messageID))
		if isNotFound(err) {
			return types.NotFound("UpdateMessage", "message", messageID)
		}
		if err != nil {
			return err
		}
		var m models.Message
		if err := snap.DataTo(&m); err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		out = m
		return tx.Set(snap.Ref, &m)
	})
	if err != nil {
		return nil, translate("UpdateMessage", err)
	}
	return &out, nil
}

// ListMessages pages by (sentAt, id) ascending, strictly after the cursor.
func (r *ConversationRepositoryFS) ListMessages(ctx context.Context, conversationID string, after models.Cursor, limit int) ([]*models.Message, error) {
	q := r.conv(conversationID).Collection(colMessages).
		OrderBy("sentAt", firestore.Asc).
		OrderBy("id", firestore.Asc)
	if !after.IsZero() {
		q = q.StartAfter(after.SentAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect[models.Message]("ListMessages", q.Documents(ctx))
}
