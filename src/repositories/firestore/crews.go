package firestore

import (
	"context"
	"crewcomms/src/membership"
	"crewcomms/src/models"
	"crewcomms/src/types"

	"cloud.google.com/go/firestore"
)

var _ membership.Repository = (*CrewRepositoryFS)(nil)

type CrewRepositoryFS struct {
	Client *firestore.Client
}

func NewCrewRepositoryFS(client *firestore.Client) *CrewRepositoryFS {
	return &CrewRepositoryFS{Client: client}
}

func (r *CrewRepositoryFS) crew(crewID string) *firestore.DocumentRef {
	return r.Client.Collection(colCrews).Doc(crewID)
}

func (r *CrewRepositoryFS) member(crewID, userID string) *firestore.DocumentRef {
	return r.crew(crewID).Collection(colMembers).Doc(userID)
}

func (r *CrewRepositoryFS) invitation(crewID, id string) *firestore.DocumentRef {
	return r.crew(crewID).Collection(colInvitations).Doc(id)
}

// CreateCrew writes the crew and its founding member in one batch.
func (r *CrewRepositoryFS) CreateCrew(ctx context.Context, crew *models.Crew, owner *models.CrewMember) error {
	if r.Client == nil {
		return errClientNil
	}
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(r.crew(crew.ID), crew); err != nil {
			return err
		}
		return tx.Set(r.member(crew.ID, owner.UserID), owner)
	})
	return translate("CreateCrew", err)
}

func (r *CrewRepositoryFS) GetCrew(ctx context.Context, crewID string) (*models.Crew, error) {
	snap, err := r.crew(crewID).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetCrew", "crew", crewID)
	}
	if err != nil {
		return nil, translate("GetCrew", err)
	}
	var c models.Crew
	if err := snap.DataTo(&c); err != nil {
		return nil, translate("GetCrew", err)
	}
	return &c, nil
}

func (r *CrewRepositoryFS) SaveCrew(ctx context.Context, crew *models.Crew) error {
	_, err := r.crew(crew.ID).Set(ctx, crew)
	return translate("SaveCrew", err)
}

func (r *CrewRepositoryFS) GetMember(ctx context.Context, crewID, userID string) (*models.CrewMember, error) {
	snap, err := r.member(crewID, userID).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetMember", "member", userID)
	}
	if err != nil {
		return nil, translate("GetMember", err)
	}
	var m models.CrewMember
	if err := snap.DataTo(&m); err != nil {
		return nil, translate("GetMember", err)
	}
	return &m, nil
}

func (r *CrewRepositoryFS) ListMembers(ctx context.Context, crewID string) ([]*models.CrewMember, error) {
	if _, err := r.GetCrew(ctx, crewID); err != nil {
		return nil, err
	}
	it := r.crew(crewID).Collection(colMembers).OrderBy("joinedAt", firestore.Asc).OrderBy("userId", firestore.Asc).Documents(ctx)
	return collect[models.CrewMember]("ListMembers", it)
}

// PutMember keeps the crew's role index and owner field in step with the member doc.
func (r *CrewRepositoryFS) PutMember(ctx context.Context, crewID string, m *models.CrewMember) error {
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.crew(crewID))
		if isNotFound(err) {
			return types.NotFound("PutMember", "crew", crewID)
		}
		if err != nil {
			return err
		}
		var c models.Crew
		if err := snap.DataTo(&c); err != nil {
			return err
		}
		c.SetMember(m.UserID, m.Role)
		if m.Role == types.ROLE_OWNER {
			c.OwnerID = m.UserID
		}
		if err := tx.Set(r.crew(crewID), &c); err != nil {
			return err
		}
		return tx.Set(r.member(crewID, m.UserID), m)
	})
	return translate("PutMember", err)
}

func (r *CrewRepositoryFS) DeleteMember(ctx context.Context, crewID, userID string) error {
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(r.crew(crewID))
		if isNotFound(err) {
			return types.NotFound("DeleteMember", "crew", crewID)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Get(r.member(crewID, userID)); err != nil {
			if isNotFound(err) {
				return types.NotFound("DeleteMember", "member", userID)
			}
			return err
		}
		var c models.Crew
		if err := snap.DataTo(&c); err != nil {
			return err
		}
		c.DropMember(userID)
		if err := tx.Set(r.crew(crewID), &c); err != nil {
			return err
		}
		return tx.Delete(r.member(crewID, userID))
	})
	return translate("DeleteMember", err)
}

func (r *CrewRepositoryFS) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if _, err := r.GetCrew(ctx, inv.CrewID); err != nil {
		return err
	}
	_, err := r.invitation(inv.CrewID, inv.ID).Create(ctx, inv)
	return translate("CreateInvitation", err)
}

func (r *CrewRepositoryFS) GetInvitation(ctx context.Context, crewID, id string) (*models.Invitation, error) {
	snap, err := r.invitation(crewID, id).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetInvitation", "invitation", id)
	}
	if err != nil {
		return nil, translate("GetInvitation", err)
	}
	var inv models.Invitation
	if err := snap.DataTo(&inv); err != nil {
		return nil, translate("GetInvitation", err)
	}
	return &inv, nil
}

func (r *CrewRepositoryFS) SaveInvitation(ctx context.Context, inv *models.Invitation) error {
	_, err := r.invitation(inv.CrewID, inv.ID).Set(ctx, inv)
	return translate("SaveInvitation", err)
}

func (r *CrewRepositoryFS) PendingInvitation(ctx context.Context, crewID, inviteeID string) (*models.Invitation, error) {
	it := r.crew(crewID).Collection(colInvitations).
		Where("inviteeId", "==", inviteeID).
		Where("status", "==", types.INVITATION_PENDING).
		Limit(1).Documents(ctx)
	found, err := collect[models.Invitation]("PendingInvitation", it)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}
