package membership

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type InviteInput struct {
	InviteeID string
	Email     string
	Role      types.Role
	Message   string
}

// InviteMember creates a pending invitation. Inviters cannot offer a role ranked above their own.
func (s *Service) InviteMember(ctx context.Context, actorID, crewID string, in InviteInput) (*models.Invitation, error) {
	const op = "InviteMember"
	if err := s.Authorize(ctx, crewID, actorID, types.PERM_INVITE_MEMBERS); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.InviteeID) == "" {
		return nil, types.ValidationFailed(op, "invitee is required")
	}
	role := in.Role
	if role == "" {
		role = types.ROLE_APPRENTICE
	}
	if !role.Valid() || role == types.ROLE_OWNER {
		return nil, types.ValidationFailed(op, "cannot invite as %q", role)
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if crew.HasMember(in.InviteeID) {
		return nil, types.NewError(types.KIND_CONFLICT, op, "user is already a member")
	}
	if types.RoleDetails[role].Rank > types.RoleDetails[crew.Roles[actorID]].Rank {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "cannot invite above your own role")
	}
	if pending, err := s.repo.PendingInvitation(ctx, crewID, in.InviteeID); err != nil {
		return nil, err
	} else if pending != nil && !pending.Expired(s.now()) {
		return pending, nil
	}

	now := s.now().UTC()
	inv := &models.Invitation{
		ID:        uuid.NewString(),
		CrewID:    crewID,
		CrewName:  crew.Name,
		InviterID: actorID,
		InviteeID: in.InviteeID,
		Email:     strings.TrimSpace(in.Email),
		Role:      role,
		Message:   strings.TrimSpace(in.Message),
		Status:    types.INVITATION_PENDING,
		CreatedAt: now,
		ExpiresAt: now.Add(s.inviteTTL),
	}
	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	s.record(ctx, models.TRAIL_MEMBER_INVITED, actorID, in.InviteeID, crewID, types.JSONB{"role": string(role)})

	e := events.NewEvent(types.EVENT_MEMBER_INVITED, crewID, actorID, map[string]string{
		"crewName":     crew.Name,
		"invitationId": inv.ID,
		"role":         string(role),
	})
	e.RecipientID = in.InviteeID
	s.emit(ctx, e)

	if inv.Email != "" && s.mailer != nil {
		if err := s.mailer.SendInvitation(ctx, inv); err != nil {
			s.log.WithFields(logrus.Fields{"crew_id": crewID, "invitation_id": inv.ID}).WithError(err).Warn("invitation email failed")
		}
	}
	return inv, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, userID, crewID, invitationID string) (*models.CrewMember, error) {
	inv, err := s.openInvitation(ctx, "AcceptInvitation", userID, crewID, invitationID)
	if err != nil {
		return nil, err
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if !crew.IsActive {
		return nil, types.NotFound("AcceptInvitation", "crew", crewID)
	}
	member, err := s.repo.GetMember(ctx, crewID, userID)
	if errors.Is(err, types.ErrNotFound) {
		member, err = s.addMember(ctx, crewID, userID, inv.Role, inv.InviterID)
	}
	if err != nil {
		return nil, err
	}
	inv.Status = types.INVITATION_ACCEPTED
	if err := s.repo.SaveInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) DeclineInvitation(ctx context.Context, userID, crewID, invitationID string) error {
	inv, err := s.openInvitation(ctx, "DeclineInvitation", userID, crewID, invitationID)
	if err != nil {
		return err
	}
	inv.Status = types.INVITATION_DECLINED
	return s.repo.SaveInvitation(ctx, inv)
}

func (s *Service) openInvitation(ctx context.Context, op, userID, crewID, invitationID string) (*models.Invitation, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	inv, err := s.repo.GetInvitation(ctx, crewID, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InviteeID != userID {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, op, "invitation belongs to another user")
	}
	if inv.Status != types.INVITATION_PENDING {
		return nil, types.NewError(types.KIND_CONFLICT, op, "invitation already %s", inv.Status)
	}
	if inv.Expired(s.now()) {
		inv.Status = types.INVITATION_EXPIRED
		if err := s.repo.SaveInvitation(ctx, inv); err != nil {
			s.log.WithFields(logrus.Fields{"crew_id": crewID, "invitation_id": invitationID}).WithError(err).Warn("could not mark invitation expired")
		}
		return nil, types.NewError(types.KIND_EXPIRED, op, "invitation expired")
	}
	return inv, nil
}
