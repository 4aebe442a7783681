package firestore

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/notification"
	"crewcomms/src/types"

	"cloud.google.com/go/firestore"
)

var _ notification.Repository = (*NotificationRepositoryFS)(nil)

type NotificationRepositoryFS struct {
	Client *firestore.Client
}

func NewNotificationRepositoryFS(client *firestore.Client) *NotificationRepositoryFS {
	return &NotificationRepositoryFS{Client: client}
}

func (r *NotificationRepositoryFS) col(crewID string) *firestore.CollectionRef {
	return r.Client.Collection(colCrews).Doc(crewID).Collection(colNotifications)
}

func (r *NotificationRepositoryFS) CreateNotification(ctx context.Context, n *models.CrewNotification) error {
	_, err := r.col(n.CrewID).Doc(n.ID).Create(ctx, n)
	return translate("CreateNotification", err)
}

func (r *NotificationRepositoryFS) GetNotification(ctx context.Context, crewID, id string) (*models.CrewNotification, error) {
	snap, err := r.col(crewID).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetNotification", "notification", id)
	}
	if err != nil {
		return nil, translate("GetNotification", err)
	}
	var n models.CrewNotification
	if err := snap.DataTo(&n); err != nil {
		return nil, translate("GetNotification", err)
	}
	return &n, nil
}

func (r *NotificationRepositoryFS) UpdateNotification(ctx context.Context, crewID, id string, fn func(*models.CrewNotification) error) (*models.CrewNotification, error) {
	ref := r.col(crewID).Doc(id)
	var out models.CrewNotification
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return types.NotFound("UpdateNotification", "notification", id)
		}
		if err != nil {
			return err
		}
		var n models.CrewNotification
		if err := snap.DataTo(&n); err != nil {
			return err
		}
		if err := fn(&n); err != nil {
			return err
		}
		out = n
		return tx.Set(ref, &n)
	})
	if err != nil {
		return nil, translate("UpdateNotification", err)
	}
	return &out, nil
}

func (r *NotificationRepositoryFS) DeleteNotification(ctx context.Context, crewID, id string) error {
	ref := r.col(crewID).Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return types.NotFound("DeleteNotification", "notification", id)
		}
		return translate("DeleteNotification", err)
	}
	_, err := ref.Delete(ctx)
	return translate("DeleteNotification", err)
}

func (r *NotificationRepositoryFS) DeleteAllNotifications(ctx context.Context, crewID string) (int, error) {
	return deleteAll(ctx, r.Client, r.col(crewID).Query)
}

// ListNotifications returns the crew's notifications, priority first then newest.
func (r *NotificationRepositoryFS) ListNotifications(ctx context.Context, crewID string) ([]*models.CrewNotification, error) {
	out, err := collect[models.CrewNotification]("ListNotifications", r.col(crewID).Documents(ctx))
	if err != nil {
		return nil, err
	}
	models.SortNotifications(out)
	return out, nil
}

func (r *NotificationRepositoryFS) ListByJobNotification(ctx context.Context, crewID, jobNotificationID string) ([]*models.CrewNotification, error) {
	it := r.col(crewID).Where("jobNotificationId", "==", jobNotificationID).Documents(ctx)
	return collect[models.CrewNotification]("ListByJobNotification", it)
}
