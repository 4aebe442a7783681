package models

import (
	"crewcomms/src/types"
	"time"
)

// UserPresence is ephemeral. Each heartbeat or typing change overwrites it.
type UserPresence struct {
	UserID   string               `json:"userId"`
	Status   types.PresenceStatus `json:"status"`
	LastSeen time.Time            `json:"lastSeen"`
	IsTyping bool                 `json:"isTyping"`
	TypingIn []string             `json:"typingIn"`
}

func (p *UserPresence) TypingInConversation(conversationID string) bool {
	for _, id := range p.TypingIn {
		if id == conversationID {
			return true
		}
	}
	return false
}
