package models

import (
	"crewcomms/src/types"
	"time"

	"github.com/gosimple/slug"
)

// Crew is stored at crews/{crewId}. Members live in the members subcollection;
// MemberIDs and Roles are a denormalized index kept in step with it.
type Crew struct {
	ID             string                `json:"id" firestore:"id"`
	Name           string                `json:"name" firestore:"name"`
	Slug           string                `json:"slug" firestore:"slug"`
	Description    string                `json:"description" firestore:"description"`
	Visibility     types.Visibility      `json:"visibility" firestore:"visibility"`
	OwnerID        string                `json:"ownerId" firestore:"ownerId"`
	MemberIDs      []string              `json:"memberIds" firestore:"memberIds"`
	Roles          map[string]types.Role `json:"roles" firestore:"roles"`
	Preferences    types.CrewPreferences `json:"preferences" firestore:"preferences"`
	StormWork      bool                  `json:"stormWork" firestore:"stormWork"`
	IsActive       bool                  `json:"isActive" firestore:"isActive"`
	CreatedAt      time.Time             `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt" firestore:"updatedAt"`
	LastActivityAt time.Time             `json:"lastActivityAt" firestore:"lastActivityAt"`
}

func NewCrew(id, name, description string, visibility types.Visibility, ownerID string, now time.Time) *Crew {
	if visibility == "" {
		visibility = types.VISIBILITY_PRIVATE
	}
	return &Crew{
		ID:             id,
		Name:           name,
		Slug:           slug.Make(name),
		Description:    description,
		Visibility:     visibility,
		OwnerID:        ownerID,
		MemberIDs:      []string{ownerID},
		Roles:          map[string]types.Role{ownerID: types.ROLE_OWNER},
		Preferences:    DefaultPreferences(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

func DefaultPreferences() types.CrewPreferences {
	return types.CrewPreferences{MatchThreshold: 60}
}

func (c *Crew) Rename(name string) {
	c.Name = name
	c.Slug = slug.Make(name)
}

func (c *Crew) HasMember(userID string) bool {
	_, ok := c.Roles[userID]
	return ok
}

// SetMember records the role in the denormalized index, adding the member if needed.
func (c *Crew) SetMember(userID string, role types.Role) {
	if c.Roles == nil {
		c.Roles = map[string]types.Role{}
	}
	if _, ok := c.Roles[userID]; !ok {
		c.MemberIDs = append(c.MemberIDs, userID)
	}
	c.Roles[userID] = role
}

func (c *Crew) DropMember(userID string) {
	delete(c.Roles, userID)
	ids := c.MemberIDs[:0]
	for _, id := range c.MemberIDs {
		if id != userID {
			ids = append(ids, id)
		}
	}
	c.MemberIDs = ids
}

// CrewMember is stored at crews/{crewId}/members/{userId}.
type CrewMember struct {
	UserID      string                    `json:"userId" firestore:"userId"`
	CrewID      string                    `json:"crewId" firestore:"crewId"`
	Role        types.Role                `json:"role" firestore:"role"`
	Overrides   types.PermissionOverrides `json:"overrides" firestore:"overrides"`
	Permissions []types.Permission        `json:"permissions" firestore:"permissions"`
	InvitedBy   string                    `json:"invitedBy,omitempty" firestore:"invitedBy,omitempty"`
	JoinedAt    time.Time                 `json:"joinedAt" firestore:"joinedAt"`
	UpdatedAt   time.Time                 `json:"updatedAt" firestore:"updatedAt"`
}

func NewCrewMember(crewID, userID string, role types.Role, now time.Time) *CrewMember {
	m := &CrewMember{UserID: userID, CrewID: crewID, JoinedAt: now}
	m.Assign(role, now)
	return m
}

// Assign sets the role and re-derives the stored permission snapshot.
func (m *CrewMember) Assign(role types.Role, now time.Time) {
	m.Role = role
	m.Permissions = types.PermissionsOf(role, m.Overrides).Slice()
	m.UpdatedAt = now
}

func (m *CrewMember) PermissionSet() types.PermissionSet {
	return types.PermissionsOf(m.Role, m.Overrides)
}

// Invitation is stored at crews/{crewId}/invitations/{id}.
type Invitation struct {
	ID        string                 `json:"id" firestore:"id"`
	CrewID    string                 `json:"crewId" firestore:"crewId"`
	CrewName  string                 `json:"crewName" firestore:"crewName"`
	InviterID string                 `json:"inviterId" firestore:"inviterId"`
	InviteeID string                 `json:"inviteeId" firestore:"inviteeId"`
	Email     string                 `json:"email,omitempty" firestore:"email,omitempty"`
	Role      types.Role             `json:"role" firestore:"role"`
	Message   string                 `json:"message,omitempty" firestore:"message,omitempty"`
	Status    types.InvitationStatus `json:"status" firestore:"status"`
	CreatedAt time.Time              `json:"createdAt" firestore:"createdAt"`
	ExpiresAt time.Time              `json:"expiresAt" firestore:"expiresAt"`
}

func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
