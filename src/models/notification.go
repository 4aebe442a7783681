package models

import (
	"crewcomms/src/types"
	"sort"
	"time"
)

// CrewNotification is stored at crews/{crewId}/notifications/{notificationId}.
// RecipientIDs is the audience; read state is tracked per recipient in ReadBy.
type CrewNotification struct {
	ID                string               `json:"id" firestore:"id"`
	CrewID            string               `json:"crewId" firestore:"crewId"`
	Type              types.CrewEventType  `json:"type" firestore:"type"`
	ActorID           string               `json:"actorId,omitempty" firestore:"actorId,omitempty"`
	RecipientIDs      []string             `json:"recipientIds" firestore:"recipientIds"`
	Title             string               `json:"title" firestore:"title"`
	Message           string               `json:"message" firestore:"message"`
	Icon              string               `json:"icon" firestore:"icon"`
	Color             string               `json:"color" firestore:"color"`
	Timestamp         time.Time            `json:"timestamp" firestore:"timestamp"`
	IsImportant       bool                 `json:"isImportant" firestore:"isImportant"`
	ActionURL         string               `json:"actionUrl,omitempty" firestore:"actionUrl,omitempty"`
	JobNotificationID string               `json:"jobNotificationId,omitempty" firestore:"jobNotificationId,omitempty"`
	ReadOnly          bool                 `json:"readOnly" firestore:"readOnly"`
	ReadBy            map[string]time.Time `json:"-" firestore:"readBy"`
	Data              map[string]string    `json:"data,omitempty" firestore:"data,omitempty"`

	// IsRead is the viewer's read flag, filled by ForUser.
	IsRead bool `json:"isRead" firestore:"-"`
}

func (n *CrewNotification) AddressedTo(userID string) bool {
	for _, id := range n.RecipientIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (n *CrewNotification) ReadByUser(userID string) bool {
	_, ok := n.ReadBy[userID]
	return ok
}

// ForUser returns a copy with IsRead set for the viewer.
func (n *CrewNotification) ForUser(userID string) *CrewNotification {
	c := *n
	c.IsRead = n.ReadByUser(userID)
	return &c
}

// SortNotifications puts important notifications first, then newest first, then by id.
func SortNotifications(ns []*CrewNotification) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if a.IsImportant != b.IsImportant {
			return a.IsImportant
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})
}
