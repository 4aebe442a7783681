package models

import (
	"crewcomms/src/types"
	"time"

	"github.com/google/uuid"
)

type JobTaskStatus string

const (
	JOB_TASK_PENDING JobTaskStatus = "pending"
	JOB_TASK_DONE    JobTaskStatus = "done"
	JOB_TASK_EXPIRED JobTaskStatus = "expired"
	JOB_TASK_FAILED  JobTaskStatus = "failed"
)

const JOB_TYPE_EXPIRE_JOB_SHARE = "ExpireJobShare"

// JobTask persists a one-time scheduled action so it survives restarts.
type JobTask struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	Name      string        `json:"name"`
	JobType   string        `gorm:"index" json:"jobType"`
	RunsAt    time.Time     `gorm:"index" json:"runsAt"`
	CrewID    string        `gorm:"index" json:"crewId"`
	PayloadID string        `json:"payloadId"`
	Payload   types.JSONB   `gorm:"type:jsonb" json:"payload"`
	Status    JobTaskStatus `gorm:"default:'pending'" json:"status"`
	types.Timestamps
}

func NewExpireJobShareTask(crewID, jobNotificationID string, runsAt time.Time) *JobTask {
	return &JobTask{
		Name:      "expire_" + jobNotificationID,
		JobType:   JOB_TYPE_EXPIRE_JOB_SHARE,
		RunsAt:    runsAt,
		CrewID:    crewID,
		PayloadID: jobNotificationID,
		Payload: types.JSONB{
			"crewId":            crewID,
			"jobNotificationId": jobNotificationID,
		},
		Status: JOB_TASK_PENDING,
	}
}
