// Package memory provides in-process repositories. They back local runs and
// service tests and mirror the document layout of the firestore adapters.
package memory

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"sort"
	"sync"
)

type CrewRepository struct {
	mu          sync.RWMutex
	crews       map[string]*models.Crew
	members     map[string]map[string]*models.CrewMember
	invitations map[string]map[string]*models.Invitation
}

func NewCrewRepository() *CrewRepository {
	return &CrewRepository{
		crews:       map[string]*models.Crew{},
		members:     map[string]map[string]*models.CrewMember{},
		invitations: map[string]map[string]*models.Invitation{},
	}
}

func (r *CrewRepository) CreateCrew(ctx context.Context, crew *models.Crew, owner *models.CrewMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.crews[crew.ID]; ok {
		return types.NewError(types.KIND_CONFLICT, "CreateCrew", "crew %s already exists", crew.ID)
	}
	r.crews[crew.ID] = cloneCrew(crew)
	r.members[crew.ID] = map[string]*models.CrewMember{owner.UserID: cloneMember(owner)}
	return nil
}

func (r *CrewRepository) GetCrew(ctx context.Context, crewID string) (*models.Crew, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.crews[crewID]
	if !ok {
		return nil, types.NotFound("GetCrew", "crew", crewID)
	}
	return cloneCrew(c), nil
}

func (r *CrewRepository) SaveCrew(ctx context.Context, crew *models.Crew) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.crews[crew.ID]; !ok {
		return types.NotFound("SaveCrew", "crew", crew.ID)
	}
	r.crews[crew.ID] = cloneCrew(crew)
	return nil
}

func (r *CrewRepository) GetMember(ctx context.Context, crewID, userID string) (*models.CrewMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[crewID][userID]
	if !ok {
		return nil, types.NotFound("GetMember", "member", userID)
	}
	return cloneMember(m), nil
}

func (r *CrewRepository) ListMembers(ctx context.Context, crewID string) ([]*models.CrewMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.crews[crewID]; !ok {
		return nil, types.NotFound("ListMembers", "crew", crewID)
	}
	out := make([]*models.CrewMember, 0, len(r.members[crewID]))
	for _, m := range r.members[crewID] {
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// PutMember writes the member and the crew's role index together.
func (r *CrewRepository) PutMember(ctx context.Context, crewID string, m *models.CrewMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.crews[crewID]
	if !ok {
		return types.NotFound("PutMember", "crew", crewID)
	}
	c.SetMember(m.UserID, m.Role)
	if m.Role == types.ROLE_OWNER {
		c.OwnerID = m.UserID
	}
	if r.members[crewID] == nil {
		r.members[crewID] = map[string]*models.CrewMember{}
	}
	r.members[crewID][m.UserID] = cloneMember(m)
	return nil
}

func (r *CrewRepository) DeleteMember(ctx context.Context, crewID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.crews[crewID]
	if !ok {
		return types.NotFound("DeleteMember", "crew", crewID)
	}
	if _, ok := r.members[crewID][userID]; !ok {
		return types.NotFound("DeleteMember", "member", userID)
	}
	delete(r.members[crewID], userID)
	c.DropMember(userID)
	return nil
}

func (r *CrewRepository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.crews[inv.CrewID]; !ok {
		return types.NotFound("CreateInvitation", "crew", inv.CrewID)
	}
	if r.invitations[inv.CrewID] == nil {
		r.invitations[inv.CrewID] = map[string]*models.Invitation{}
	}
	c := *inv
	r.invitations[inv.CrewID][inv.ID] = &c
	return nil
}

func (r *CrewRepository) GetInvitation(ctx context.Context, crewID, id string) (*models.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invitations[crewID][id]
	if !ok {
		return nil, types.NotFound("GetInvitation", "invitation", id)
	}
	c := *inv
	return &c, nil
}

func (r *CrewRepository) SaveInvitation(ctx context.Context, inv *models.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invitations[inv.CrewID][inv.ID]; !ok {
		return types.NotFound("SaveInvitation", "invitation", inv.ID)
	}
	c := *inv
	r.invitations[inv.CrewID][inv.ID] = &c
	return nil
}

// PendingInvitation finds an open invitation for the invitee, if any.
func (r *CrewRepository) PendingInvitation(ctx context.Context, crewID, inviteeID string) (*models.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inv := range r.invitations[crewID] {
		if inv.InviteeID == inviteeID && inv.Status == types.INVITATION_PENDING {
			c := *inv
			return &c, nil
		}
	}
	return nil, nil
}

func cloneCrew(c *models.Crew) *models.Crew {
	out := *c
	out.MemberIDs = append([]string(nil), c.MemberIDs...)
	out.Roles = make(map[string]types.Role, len(c.Roles))
	for k, v := range c.Roles {
		out.Roles[k] = v
	}
	out.Preferences = clonePreferences(c.Preferences)
	return &out
}

func clonePreferences(p types.CrewPreferences) types.CrewPreferences {
	out := p
	out.JobTypes = append([]string(nil), p.JobTypes...)
	out.ConstructionTypes = append([]string(nil), p.ConstructionTypes...)
	out.PreferredCompanies = append([]string(nil), p.PreferredCompanies...)
	out.RequiredSkills = append([]string(nil), p.RequiredSkills...)
	return out
}

func cloneMember(m *models.CrewMember) *models.CrewMember {
	out := *m
	out.Permissions = append([]types.Permission(nil), m.Permissions...)
	out.Overrides.Grant = append([]types.Permission(nil), m.Overrides.Grant...)
	out.Overrides.Revoke = append([]types.Permission(nil), m.Overrides.Revoke...)
	return &out
}
