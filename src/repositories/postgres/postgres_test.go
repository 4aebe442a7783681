package postgres

import (
	"context"
	"crewcomms/src/db"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type PostgresTestSuite struct {
	suite.Suite
	ctx   context.Context
	mock  sqlmock.Sqlmock
	audit *AuditLog
	tasks *JobTaskStore
}

func (s *PostgresTestSuite) SetupTest() {
	s.ctx = context.Background()
	gormDB, mock := db.NewMockDB(s.T())
	s.mock = mock
	s.audit = NewAuditLog(gormDB)
	s.tasks = NewJobTaskStore(gormDB)
}

func (s *PostgresTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *PostgresTestSuite) TestRecordTrail() {
	id := uuid.New()
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO "trail_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	s.mock.ExpectCommit()

	entry := &models.TrailLog{
		Type:      models.TRAIL_ROLE_CHANGED,
		Initiator: "foreman",
		Subject:   "apprentice",
		Group:     "crew-1",
		Details:   types.JSONB{"from": "apprentice", "to": "journeyman"},
	}
	s.Require().NoError(s.audit.Record(s.ctx, entry))
	s.Equal(id, entry.ID)
}

func (s *PostgresTestSuite) TestAuditForCrew() {
	rows := sqlmock.NewRows([]string{"id", "type", "initiator", "subject", "group", "created_at"}).
		AddRow(uuid.NewString(), "memberRemoved", "owner", "bea", "crew-1", time.Now())
	s.mock.ExpectQuery(`SELECT \* FROM "trail_logs" WHERE "group" = \$1 ORDER BY created_at desc LIMIT \$2`).
		WithArgs("crew-1", 20).
		WillReturnRows(rows)

	got, err := s.audit.ForCrew(s.ctx, "crew-1", 20)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(models.TRAIL_MEMBER_REMOVED, got[0].Type)
}

func (s *PostgresTestSuite) TestCreateJobTask() {
	id := uuid.New()
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO "job_tasks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	s.mock.ExpectCommit()

	task := models.NewExpireJobShareTask("crew-1", "job-1", time.Now().Add(time.Hour))
	s.Require().NoError(s.tasks.CreateJobTask(s.ctx, task))
	s.Equal(id, task.ID)
}

func (s *PostgresTestSuite) TestUpdateJobTaskStatus() {
	id := uuid.New()
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "job_tasks" SET "status"=\$1,"updated_at"=\$2 WHERE id = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()
	s.NoError(s.tasks.UpdateJobTaskStatus(s.ctx, id, models.JOB_TASK_DONE))

	s.mock.ExpectBegin()
	s.mock.ExpectExec(`UPDATE "job_tasks"`).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()
	s.ErrorIs(s.tasks.UpdateJobTaskStatus(s.ctx, uuid.New(), models.JOB_TASK_DONE), types.ErrNotFound)
}

func (s *PostgresTestSuite) TestListPendingJobTasks() {
	runsAt := time.Now().Add(time.Hour).UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "job_type", "runs_at", "crew_id", "payload_id", "status"}).
		AddRow(uuid.NewString(), "expire_job-1", models.JOB_TYPE_EXPIRE_JOB_SHARE, runsAt, "crew-1", "job-1", "pending")
	s.mock.ExpectQuery(`SELECT \* FROM "job_tasks" WHERE job_type = \$1 AND status = \$2`).
		WithArgs(models.JOB_TYPE_EXPIRE_JOB_SHARE, "pending").
		WillReturnRows(rows)

	got, err := s.tasks.ListPendingJobTasks(s.ctx, models.JOB_TYPE_EXPIRE_JOB_SHARE)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("job-1", got[0].PayloadID)
	s.Equal("crew-1", got[0].CrewID)
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}
