package postgres

import (
	"context"
	"crewcomms/src/lib"
	"crewcomms/src/membership"
	"crewcomms/src/models"
	"crewcomms/src/models/scopes"
	"crewcomms/src/types"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	_ membership.AuditLog = (*AuditLog)(nil)
	_ lib.JobTaskStore    = (*JobTaskStore)(nil)
)

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.WrapError(types.KIND_NOT_FOUND, op, err)
	}
	return types.WrapError(types.KIND_INTERNAL, op, err)
}

// AuditLog appends membership trail rows.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) Record(ctx context.Context, entry *models.TrailLog) error {
	return translate("AuditLog.Record", a.db.WithContext(ctx).Create(entry).Error)
}

// ForCrew returns the newest rows first.
func (a *AuditLog) ForCrew(ctx context.Context, crewID string, limit int) ([]models.TrailLog, error) {
	var rows []models.TrailLog
	if limit <= 0 {
		limit = 100
	}
	if err := a.db.WithContext(ctx).Scopes(scopes.WithGroup(crewID), scopes.Newest(limit)).Find(&rows).Error; err != nil {
		return nil, translate("AuditLog.ForCrew", err)
	}
	return rows, nil
}

type JobTaskStore struct {
	db *gorm.DB
}

func NewJobTaskStore(db *gorm.DB) *JobTaskStore {
	return &JobTaskStore{db: db}
}

func (s *JobTaskStore) CreateJobTask(ctx context.Context, t *models.JobTask) error {
	return translate("JobTaskStore.Create", s.db.WithContext(ctx).Create(t).Error)
}

func (s *JobTaskStore) UpdateJobTaskStatus(ctx context.Context, id uuid.UUID, status models.JobTaskStatus) error {
	res := s.db.WithContext(ctx).Model(&models.JobTask{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate("JobTaskStore.UpdateStatus", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFound("JobTaskStore.UpdateStatus", "job task", id.String())
	}
	return nil
}

func (s *JobTaskStore) ListPendingJobTasks(ctx context.Context, jobType string) ([]*models.JobTask, error) {
	var tasks []*models.JobTask
	err := s.db.WithContext(ctx).
		Scopes(scopes.WithJobType(jobType), scopes.WithPendingStatus).
		Order("runs_at").
		Find(&tasks).Error
	if err != nil {
		return nil, translate("JobTaskStore.ListPending", err)
	}
	return tasks, nil
}
