package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}

func (a *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, a)
}

type Visibility string

const (
	VISIBILITY_PUBLIC      Visibility = "public"
	VISIBILITY_PRIVATE     Visibility = "private"
	VISIBILITY_INVITE_ONLY Visibility = "inviteOnly"
)

func (v Visibility) Valid() bool {
	switch v {
	case VISIBILITY_PUBLIC, VISIBILITY_PRIVATE, VISIBILITY_INVITE_ONLY:
		return true
	}
	return false
}

type PresenceStatus string

const (
	PRESENCE_ONLINE  PresenceStatus = "online"
	PRESENCE_AWAY    PresenceStatus = "away"
	PRESENCE_BUSY    PresenceStatus = "busy"
	PRESENCE_OFFLINE PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PRESENCE_ONLINE, PRESENCE_AWAY, PRESENCE_BUSY, PRESENCE_OFFLINE:
		return true
	}
	return false
}

type MessageType string

const (
	MESSAGE_TEXT     MessageType = "text"
	MESSAGE_IMAGE    MessageType = "image"
	MESSAGE_VOICE    MessageType = "voice"
	MESSAGE_DOCUMENT MessageType = "document"
	MESSAGE_LOCATION MessageType = "location"
	MESSAGE_JOBSHARE MessageType = "jobShare"
	MESSAGE_SYSTEM   MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MESSAGE_TEXT, MESSAGE_IMAGE, MESSAGE_VOICE, MESSAGE_DOCUMENT, MESSAGE_LOCATION, MESSAGE_JOBSHARE, MESSAGE_SYSTEM:
		return true
	}
	return false
}

// NeedsAttachment reports whether the type carries its payload as an attachment.
func (t MessageType) NeedsAttachment() bool {
	return t == MESSAGE_IMAGE || t == MESSAGE_VOICE || t == MESSAGE_DOCUMENT
}

type ConversationKind string

const (
	CONVERSATION_DIRECT ConversationKind = "direct"
	CONVERSATION_CREW   ConversationKind = "crew"
)

type JobResponse string

const (
	RESPONSE_PENDING  JobResponse = "pending"
	RESPONSE_ACCEPTED JobResponse = "accepted"
	RESPONSE_DECLINED JobResponse = "declined"
)

func (r JobResponse) Terminal() bool {
	return r == RESPONSE_ACCEPTED || r == RESPONSE_DECLINED
}

type InvitationStatus string

const (
	INVITATION_PENDING  InvitationStatus = "pending"
	INVITATION_ACCEPTED InvitationStatus = "accepted"
	INVITATION_DECLINED InvitationStatus = "declined"
	INVITATION_EXPIRED  InvitationStatus = "expired"
)

// CrewEventType names the events crews produce. Each one maps to a notification template.
type CrewEventType string

const (
	EVENT_MESSAGE_SENT             CrewEventType = "messageSent"
	EVENT_JOB_SHARED               CrewEventType = "jobShared"
	EVENT_JOB_RESPONDED            CrewEventType = "jobResponded"
	EVENT_JOB_EXPIRED              CrewEventType = "jobExpired"
	EVENT_MEMBER_INVITED           CrewEventType = "memberInvited"
	EVENT_MEMBER_JOINED            CrewEventType = "memberJoined"
	EVENT_MEMBER_REMOVED           CrewEventType = "memberRemoved"
	EVENT_ROLE_CHANGED             CrewEventType = "roleChanged"
	EVENT_CREW_UPDATED             CrewEventType = "crewUpdated"
	EVENT_CREW_PREFERENCES_CHANGED CrewEventType = "crewPreferencesChanged"
	EVENT_ANNOUNCEMENT             CrewEventType = "announcement"
)

func (t CrewEventType) Valid() bool {
	switch t {
	case EVENT_MESSAGE_SENT, EVENT_JOB_SHARED, EVENT_JOB_RESPONDED, EVENT_JOB_EXPIRED,
		EVENT_MEMBER_INVITED, EVENT_MEMBER_JOINED, EVENT_MEMBER_REMOVED, EVENT_ROLE_CHANGED,
		EVENT_CREW_UPDATED, EVENT_CREW_PREFERENCES_CHANGED, EVENT_ANNOUNCEMENT:
		return true
	}
	return false
}

type Severity string

const (
	SEVERITY_INFO    Severity = "info"
	SEVERITY_SUCCESS Severity = "success"
	SEVERITY_WARNING Severity = "warning"
	SEVERITY_ERROR   Severity = "error"
)

type CrewRequestParams struct {
	CrewID string `uri:"crewId" binding:"required"`
}

type CrewMemberRequestParams struct {
	CrewID string `uri:"crewId" binding:"required"`
	UserID string `uri:"userId" binding:"required"`
}

type CrewItemRequestParams struct {
	CrewID string `uri:"crewId" binding:"required"`
	ID     string `uri:"id" binding:"required"`
}

type ConversationRequestParams struct {
	ConversationID string `uri:"conversationId" binding:"required"`
}

type MessageRequestParams struct {
	ConversationID string `uri:"conversationId" binding:"required"`
	MessageID      string `uri:"messageId" binding:"required"`
}

// CrewPreferences describe the jobs a crew wants to see. Empty fields match anything.
type CrewPreferences struct {
	JobTypes           []string `json:"jobTypes" firestore:"jobTypes"`
	ConstructionTypes  []string `json:"constructionTypes" firestore:"constructionTypes"`
	MinHourlyRate      float64  `json:"minHourlyRate" firestore:"minHourlyRate"`
	MaxDistanceMiles   float64  `json:"maxDistanceMiles" firestore:"maxDistanceMiles"`
	PreferredCompanies []string `json:"preferredCompanies" firestore:"preferredCompanies"`
	RequiredSkills     []string `json:"requiredSkills" firestore:"requiredSkills"`
	AutoShare          bool     `json:"autoShare" firestore:"autoShare"`
	MatchThreshold     int      `json:"matchThreshold" firestore:"matchThreshold"`
}

type CreateCrewRequestBody struct {
	Name        string           `json:"name" binding:"required,max=60"`
	Description string           `json:"description" binding:"max=500"`
	Visibility  Visibility       `json:"visibility" binding:"omitempty,crewvisibility"`
	StormWork   bool             `json:"stormWork"`
	Preferences *CrewPreferences `json:"preferences"`
}

type UpdateCrewRequestBody struct {
	Name        *string          `json:"name" binding:"omitempty,max=60"`
	Description *string          `json:"description" binding:"omitempty,max=500"`
	Visibility  *Visibility      `json:"visibility" binding:"omitempty,crewvisibility"`
	StormWork   *bool            `json:"stormWork"`
	Preferences *CrewPreferences `json:"preferences"`
}

type UpdateRoleRequestBody struct {
	Role     Role `json:"role" binding:"required,crewrole"`
	Announce bool `json:"announce"`
}

type PermissionOverridesRequestBody struct {
	Grant  []Permission `json:"grant" binding:"omitempty,dive,crewpermission"`
	Revoke []Permission `json:"revoke" binding:"omitempty,dive,crewpermission"`
}

type InviteMemberRequestBody struct {
	InviteeID string `json:"inviteeId" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
	Role      Role   `json:"role" binding:"omitempty,crewrole"`
	Message   string `json:"message" binding:"max=500"`
}

type OpenDirectRequestBody struct {
	UserID string `json:"userId" binding:"required"`
}

type SendMessageRequestBody struct {
	Content          string      `json:"content" binding:"max=4000"`
	Type             MessageType `json:"type" binding:"omitempty,messagetype"`
	Attachments      []string    `json:"attachments" binding:"omitempty,dive,url"`
	ReplyToMessageID string      `json:"replyToMessageId"`
	ClientMessageID  string      `json:"clientMessageId" binding:"omitempty,max=128"`
}

type HistoryQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

type ReactionRequestBody struct {
	Emoji string `json:"emoji" binding:"required,max=16"`
}

type SetStatusRequestBody struct {
	Status PresenceStatus `json:"status" binding:"required,presencestatus"`
}

type SetTypingRequestBody struct {
	CrewID         string `json:"crewId"`
	ConversationID string `json:"conversationId" binding:"required"`
	IsTyping       *bool  `json:"isTyping" binding:"required"`
}

type PublishNotificationRequestBody struct {
	Title       string `json:"title" binding:"required,max=120"`
	Message     string `json:"message" binding:"required,max=1000"`
	IsImportant bool   `json:"isImportant"`
	ActionURL   string `json:"actionUrl" binding:"omitempty,max=512"`
}

type ShareJobRequestBody struct {
	JobID            string     `json:"jobId" binding:"required"`
	Title            string     `json:"title" binding:"required"`
	Company          string     `json:"company"`
	Classification   string     `json:"classification"`
	ConstructionType string     `json:"constructionType"`
	HourlyRate       float64    `json:"hourlyRate" binding:"min=0"`
	DistanceMiles    float64    `json:"distanceMiles" binding:"min=0"`
	Skills           []string   `json:"skills"`
	Location         string     `json:"location"`
	Message          string     `json:"message" binding:"max=1000"`
	IsPriority       bool       `json:"isPriority"`
	ExpiresAt        *time.Time `json:"expiresAt" binding:"omitempty,futuredate"`
}

type JobResponseRequestBody struct {
	Response JobResponse `json:"response" binding:"required,oneof=accepted declined"`
}

type LoginRequestBody struct {
	IDToken string `json:"idToken" binding:"required"`
}

type RegisterDeviceRequestBody struct {
	Token string `json:"token" binding:"required"`
}
