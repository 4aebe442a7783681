package membership

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// UpdateMemberRole changes a member's role. The affected member is always notified;
// announce also notifies the rest of the crew. Concurrent changes are last-write-wins.
func (s *Service) UpdateMemberRole(ctx context.Context, actorID, crewID, userID string, newRole types.Role, announce bool) (*models.CrewMember, error) {
	const op = "UpdateMemberRole"
	if actorID == "" {
		return nil, types.ErrUnauthenticated
	}
	if !newRole.Valid() {
		return nil, types.ValidationFailed(op, "unknown role %q", newRole)
	}
	if err := s.Authorize(ctx, crewID, actorID, types.PERM_MANAGE_MEMBERS); err != nil {
		return nil, err
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetMember(ctx, crewID, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == newRole {
		return target, nil
	}

	actorIsOwner := crew.OwnerID == actorID
	if (target.Role == types.ROLE_OWNER || newRole == types.ROLE_OWNER) && !actorIsOwner {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "only the owner can transfer ownership")
	}
	if target.UserID == crew.OwnerID && newRole != types.ROLE_OWNER {
		return nil, types.ValidationFailed(op, "transfer ownership before changing the owner's role")
	}

	now := s.now().UTC()
	previous := target.Role
	if newRole == types.ROLE_OWNER {
		former, err := s.repo.GetMember(ctx, crewID, crew.OwnerID)
		if err != nil {
			return nil, err
		}
		former.Assign(types.ROLE_FOREMAN, now)
		if err := s.repo.PutMember(ctx, crewID, former); err != nil {
			return nil, err
		}
		s.notifyRoleChange(ctx, crewID, actorID, former.UserID, types.ROLE_OWNER, types.ROLE_FOREMAN, false)
	}
	target.Assign(newRole, now)
	if err := s.repo.PutMember(ctx, crewID, target); err != nil {
		return nil, err
	}

	s.record(ctx, models.TRAIL_ROLE_CHANGED, actorID, userID, crewID, types.JSONB{
		"from": string(previous),
		"to":   string(newRole),
	})
	s.notifyRoleChange(ctx, crewID, actorID, userID, previous, newRole, announce)
	s.log.WithFields(logrus.Fields{
		"crew_id": crewID,
		"user_id": userID,
		"from":    previous,
		"to":      newRole,
	}).Info("member role changed")
	return target, nil
}

// SetPermissionOverrides replaces the member's grant/revoke adjustments on top of the role.
// Non-owners can only adjust members ranked below them and only grant what they hold.
func (s *Service) SetPermissionOverrides(ctx context.Context, actorID, crewID, userID string, overrides types.PermissionOverrides) (*models.CrewMember, error) {
	const op = "SetPermissionOverrides"
	if actorID == "" {
		return nil, types.ErrUnauthenticated
	}
	grant, err := normalizePermissions(op, overrides.Grant)
	if err != nil {
		return nil, err
	}
	revoke, err := normalizePermissions(op, overrides.Revoke)
	if err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, crewID, actorID, types.PERM_MANAGE_MEMBERS); err != nil {
		return nil, err
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetMember(ctx, crewID, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == types.ROLE_OWNER {
		return nil, types.ValidationFailed(op, "the owner's permissions cannot be overridden")
	}
	if crew.OwnerID != actorID {
		actor, err := s.repo.GetMember(ctx, crewID, actorID)
		if err != nil {
			return nil, err
		}
		if types.RoleDetails[target.Role].Rank >= types.RoleDetails[actor.Role].Rank {
			return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "cannot adjust a member at or above your own role")
		}
		held := actor.PermissionSet()
		for _, p := range grant {
			if !held.Has(p) {
				return nil, types.PermissionDenied(op, p)
			}
		}
	}

	target.Overrides = types.PermissionOverrides{Grant: grant, Revoke: revoke}
	target.Assign(target.Role, s.now().UTC())
	if err := s.repo.PutMember(ctx, crewID, target); err != nil {
		return nil, err
	}
	s.record(ctx, models.TRAIL_PERMISSIONS_CHANGED, actorID, userID, crewID, types.JSONB{
		"grant":  joinPermissions(grant),
		"revoke": joinPermissions(revoke),
	})
	s.log.WithFields(logrus.Fields{
		"crew_id": crewID,
		"user_id": userID,
		"grant":   grant,
		"revoke":  revoke,
	}).Info("member permissions overridden")
	return target, nil
}

func normalizePermissions(op string, perms []types.Permission) ([]types.Permission, error) {
	set := types.NewPermissionSet()
	for _, p := range perms {
		if !p.Valid() {
			return nil, types.ValidationFailed(op, "unknown permission %q", p)
		}
		set[p] = struct{}{}
	}
	return set.Slice(), nil
}

func joinPermissions(perms []types.Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}

func (s *Service) notifyRoleChange(ctx context.Context, crewID, actorID, userID string, from, to types.Role, announce bool) {
	e := events.NewEvent(types.EVENT_ROLE_CHANGED, crewID, actorID, map[string]string{
		"subjectId":    userID,
		"previousRole": string(from),
		"role":         string(to),
		"roleTitle":    types.RoleDetails[to].Title,
	})
	direct := e
	direct.RecipientID = userID
	s.emit(ctx, direct)

	if announce {
		crewWide := events.NewEvent(types.EVENT_ROLE_CHANGED, crewID, actorID, map[string]string{
			"subjectId": userID,
			"excludeId": userID,
			"role":      string(to),
			"roleTitle": types.RoleDetails[to].Title,
			"message":   "A crew member is now " + types.RoleDetails[to].Title,
		})
		s.emit(ctx, crewWide)
	}
}

// JoinCrew adds the caller to a public crew as an apprentice. Joining twice returns the existing membership.
func (s *Service) JoinCrew(ctx context.Context, userID, crewID string) (*models.CrewMember, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if !crew.IsActive {
		return nil, types.NotFound("JoinCrew", "crew", crewID)
	}
	if existing, err := s.repo.GetMember(ctx, crewID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if crew.Visibility != types.VISIBILITY_PUBLIC {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, "JoinCrew", "this crew requires an invitation")
	}
	return s.addMember(ctx, crewID, userID, types.ROLE_APPRENTICE, "")
}

func (s *Service) addMember(ctx context.Context, crewID, userID string, role types.Role, invitedBy string) (*models.CrewMember, error) {
	m := models.NewCrewMember(crewID, userID, role, s.now().UTC())
	m.InvitedBy = invitedBy
	if err := s.repo.PutMember(ctx, crewID, m); err != nil {
		return nil, err
	}
	s.record(ctx, models.TRAIL_MEMBER_JOINED, userID, userID, crewID, types.JSONB{"role": string(role)})
	s.emit(ctx, events.NewEvent(types.EVENT_MEMBER_JOINED, crewID, userID, map[string]string{
		"subjectId": userID,
		"role":      string(role),
	}))
	return m, nil
}

// RemoveMember removes userID from the crew. Members may always leave, except the owner.
func (s *Service) RemoveMember(ctx context.Context, actorID, crewID, userID string) error {
	const op = "RemoveMember"
	if actorID == "" {
		return types.ErrUnauthenticated
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return err
	}
	if !crew.HasMember(userID) {
		return types.NotFound(op, "member", userID)
	}
	if userID == crew.OwnerID {
		return types.ValidationFailed(op, "the owner must transfer ownership before leaving")
	}
	if actorID != userID {
		if err := s.Authorize(ctx, crewID, actorID, types.PERM_MANAGE_MEMBERS); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteMember(ctx, crewID, userID); err != nil {
		return err
	}
	s.record(ctx, models.TRAIL_MEMBER_REMOVED, actorID, userID, crewID, nil)
	s.emit(ctx, events.NewEvent(types.EVENT_MEMBER_REMOVED, crewID, actorID, map[string]string{"subjectId": userID}))
	return nil
}
