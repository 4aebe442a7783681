package models

import (
	"crewcomms/src/types"
	"time"

	"github.com/google/uuid"
)

type TrailType string

const (
	TRAIL_ROLE_CHANGED        TrailType = "roleChanged"
	TRAIL_PERMISSIONS_CHANGED TrailType = "permissionsChanged"
	TRAIL_MEMBER_INVITED      TrailType = "memberInvited"
	TRAIL_MEMBER_JOINED       TrailType = "memberJoined"
	TRAIL_MEMBER_REMOVED      TrailType = "memberRemoved"
	TRAIL_CREW_CREATED        TrailType = "crewCreated"
	TRAIL_CREW_UPDATED        TrailType = "crewUpdated"
	TRAIL_CREW_DEACTIVATED    TrailType = "crewDeactivated"
)

// TrailLog is an append-only audit row for membership changes.
type TrailLog struct {
	ID        uuid.UUID   `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`
	Type      TrailType   `gorm:"index" json:"type"`
	Initiator string      `json:"initiator"`
	Subject   string      `json:"subject"`
	Group     string      `gorm:"index" json:"group"`
	Details   types.JSONB `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"createdAt"`
}
