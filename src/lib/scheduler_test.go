package lib

import (
	"context"
	"crewcomms/src/models"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTasks struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*models.JobTask
	updates map[uuid.UUID]models.JobTaskStatus
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: map[uuid.UUID]*models.JobTask{}, updates: map[uuid.UUID]models.JobTaskStatus{}}
}

func (m *memTasks) CreateJobTask(ctx context.Context, t *models.JobTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	m.tasks[t.ID] = t
	return nil
}

func (m *memTasks) UpdateJobTaskStatus(ctx context.Context, id uuid.UUID, status models.JobTaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[id] = status
	return nil
}

func (m *memTasks) ListPendingJobTasks(ctx context.Context, jobType string) ([]*models.JobTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobTask
	for _, t := range m.tasks {
		if t.JobType == jobType && t.Status == models.JOB_TASK_PENDING {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) status(id uuid.UUID) (models.JobTaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.updates[id]
	return s, ok
}

type expiries struct {
	mu  sync.Mutex
	ids []string
}

func (e *expiries) expire(ctx context.Context, crewID, id string) error {
	e.mu.Lock()
	e.ids = append(e.ids, crewID+"/"+id)
	e.mu.Unlock()
	return nil
}

func (e *expiries) got() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func startScheduler(t *testing.T) {
	s, err := gocron.NewScheduler()
	require.NoError(t, err)
	NewScheduler(s)
	s.Start()
	t.Cleanup(func() {
		_ = s.Shutdown()
		NewScheduler(nil)
	})
}

func TestExpirySchedulerRunsAtExpiry(t *testing.T) {
	startScheduler(t)
	tasks := newMemTasks()
	exp := &expiries{}
	es := NewExpiryScheduler(tasks, exp.expire)

	require.NoError(t, es.ScheduleExpiry(context.Background(), "crew-1", "job-1", time.Now().Add(150*time.Millisecond)))
	assert.Empty(t, exp.got())
	assert.Eventually(t, func() bool { return len(exp.got()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"crew-1/job-1"}, exp.got())

	pending, _ := tasks.ListPendingJobTasks(context.Background(), models.JOB_TYPE_EXPIRE_JOB_SHARE)
	require.Len(t, pending, 1)
	assert.Eventually(t, func() bool {
		s, ok := tasks.status(pending[0].ID)
		return ok && s == models.JOB_TASK_DONE
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRecoverQueuedJobsRunsOverdueImmediately(t *testing.T) {
	startScheduler(t)
	tasks := newMemTasks()
	overdue := models.NewExpireJobShareTask("crew-1", "job-old", time.Now().Add(-time.Hour))
	require.NoError(t, tasks.CreateJobTask(context.Background(), overdue))

	exp := &expiries{}
	es := NewExpiryScheduler(tasks, exp.expire)
	n, err := es.RecoverQueuedJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Eventually(t, func() bool { return len(exp.got()) == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestExpirySchedulerWithoutStore(t *testing.T) {
	startScheduler(t)
	exp := &expiries{}
	es := NewExpiryScheduler(nil, exp.expire)
	require.NoError(t, es.ScheduleExpiry(context.Background(), "crew-2", "job-2", time.Now()))
	assert.Eventually(t, func() bool { return len(exp.got()) == 1 }, 3*time.Second, 20*time.Millisecond)

	n, err := es.RecoverQueuedJobs(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
