package firestore

import (
	"context"
	"crewcomms/src/jobmatch"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ jobmatch.Repository = (*JobNotificationRepositoryFS)(nil)

type JobNotificationRepositoryFS struct {
	Client *firestore.Client
}

func NewJobNotificationRepositoryFS(client *firestore.Client) *JobNotificationRepositoryFS {
	return &JobNotificationRepositoryFS{Client: client}
}

func (r *JobNotificationRepositoryFS) col(crewID string) *firestore.CollectionRef {
	return r.Client.Collection(colCrews).Doc(crewID).Collection(colJobNotifications)
}

func (r *JobNotificationRepositoryFS) CreateJobNotification(ctx context.Context, j *models.JobNotification) error {
	_, err := r.col(j.CrewID).Doc(j.ID).Create(ctx, j)
	if status.Code(err) == codes.AlreadyExists {
		return types.NewError(types.KIND_CONFLICT, "CreateJobNotification", "job notification %s already exists", j.ID)
	}
	return translate("CreateJobNotification", err)
}

func (r *JobNotificationRepositoryFS) GetJobNotification(ctx context.Context, crewID, id string) (*models.JobNotification, error) {
	snap, err := r.col(crewID).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, types.NotFound("GetJobNotification", "job notification", id)
	}
	if err != nil {
		return nil, translate("GetJobNotification", err)
	}
	var j models.JobNotification
	if err := snap.DataTo(&j); err != nil {
		return nil, translate("GetJobNotification", err)
	}
	return &j, nil
}

// MutateJobNotification runs fn inside a transaction; concurrent responders retry on contention.
func (r *JobNotificationRepositoryFS) MutateJobNotification(ctx context.Context, crewID, id string, fn func(*models.JobNotification) error) (*models.JobNotification, error) {
	ref := r.col(crewID).Doc(id)
	var out models.JobNotification
	err := r.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return types.NotFound("MutateJobNotification", "job notification", id)
		}
		if err != nil {
			return err
		}
		var j models.JobNotification
		if err := snap.DataTo(&j); err != nil {
			return err
		}
		if err := fn(&j); err != nil {
			return err
		}
		out = j
		return tx.Set(ref, &j)
	})
	if err != nil {
		return nil, translate("MutateJobNotification", err)
	}
	return &out, nil
}

func (r *JobNotificationRepositoryFS) ListJobNotifications(ctx context.Context, crewID string) ([]*models.JobNotification, error) {
	it := r.col(crewID).OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Asc).Documents(ctx)
	return collect[models.JobNotification]("ListJobNotifications", it)
}

// ListDueJobNotifications queries across crews through the jobNotifications collection group.
func (r *JobNotificationRepositoryFS) ListDueJobNotifications(ctx context.Context, before time.Time, limit int) ([]*models.JobNotification, error) {
	q := r.Client.CollectionGroup(colJobNotifications).
		Where("expired", "==", false).
		Where("expiresAt", "<=", before).
		OrderBy("expiresAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect[models.JobNotification]("ListDueJobNotifications", q.Documents(ctx))
}
