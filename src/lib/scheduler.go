package lib

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/models"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

func GetScheduler() (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	return sched, nil
}

// CreateCronJob runs handler every interval. A run still in flight makes the next one skip.
func CreateCronJob(name string, interval time.Duration, handler any, args ...any) (*string, error) {
	sched, err := GetScheduler()
	if err != nil {
		return nil, err
	}
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(handler, args...),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Error creating job %s: %s\n", name, err.Error())
		return nil, err
	}
	id := j.ID().String()
	log.Printf("Job: %s %s every %s\n", id, j.Name(), interval)
	return &id, nil
}

func CreateOneTimeCronJob(def gocron.JobDefinition, task gocron.Task, opts ...gocron.JobOption) (*string, error) {
	sched, err := GetScheduler()
	if err != nil {
		return nil, err
	}
	j, err := sched.NewJob(def, task, opts...)
	if err != nil {
		return nil, err
	}
	id := j.ID().String()
	log.Printf("Job: %s %s\n", id, j.Name())
	return &id, nil
}

type JobTaskStore interface {
	CreateJobTask(ctx context.Context, t *models.JobTask) error
	UpdateJobTaskStatus(ctx context.Context, id uuid.UUID, status models.JobTaskStatus) error
	ListPendingJobTasks(ctx context.Context, jobType string) ([]*models.JobTask, error)
}

type ExpireFunc func(ctx context.Context, crewID, jobNotificationID string) error

// ExpiryScheduler runs job-share expiry as one-time jobs. With a JobTaskStore the
// schedule is persisted and RecoverQueuedJobs restores it after a restart.
type ExpiryScheduler struct {
	tasks  JobTaskStore
	expire ExpireFunc
	now    func() time.Time
}

func NewExpiryScheduler(tasks JobTaskStore, expire ExpireFunc) *ExpiryScheduler {
	return &ExpiryScheduler{tasks: tasks, expire: expire, now: time.Now}
}

func (e *ExpiryScheduler) ScheduleExpiry(ctx context.Context, crewID, jobNotificationID string, at time.Time) error {
	task := models.NewExpireJobShareTask(crewID, jobNotificationID, at)
	if e.tasks != nil {
		if err := e.tasks.CreateJobTask(ctx, task); err != nil {
			log.Printf("[Scheduler] could not persist task %s: %s\n", task.Name, err.Error())
			return err
		}
	}
	return e.register(task)
}

func (e *ExpiryScheduler) register(task *models.JobTask) error {
	def := gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(task.RunsAt))
	if !task.RunsAt.After(e.now()) {
		def = gocron.OneTimeJob(gocron.OneTimeJobStartImmediately())
	}
	if _, err := CreateOneTimeCronJob(def, gocron.NewTask(e.run, task), gocron.WithName(task.Name)); err != nil {
		log.Printf("[Scheduler] could not schedule %s: %s\n", task.Name, err.Error())
		return err
	}
	log.Printf("[Scheduler] %s runs at %s\n", task.Name, task.RunsAt.Format(config.TIME_PARSE_FORMAT))
	return nil
}

func (e *ExpiryScheduler) run(task *models.JobTask) {
	ctx := context.Background()
	status := models.JOB_TASK_DONE
	if err := e.expire(ctx, task.CrewID, task.PayloadID); err != nil {
		log.Printf("[Scheduler] %s failed: %s\n", task.Name, err.Error())
		status = models.JOB_TASK_FAILED
	}
	if e.tasks == nil {
		return
	}
	if err := e.tasks.UpdateJobTaskStatus(ctx, task.ID, status); err != nil {
		log.Printf("[Scheduler] could not update task %s: %s\n", task.Name, err.Error())
	}
}

// RecoverQueuedJobs re-registers persisted pending expiries. Overdue ones run immediately.
func (e *ExpiryScheduler) RecoverQueuedJobs(ctx context.Context) (int, error) {
	if e.tasks == nil {
		return 0, nil
	}
	pending, err := e.tasks.ListPendingJobTasks(ctx, models.JOB_TYPE_EXPIRE_JOB_SHARE)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, task := range pending {
		if err := e.register(task); err != nil {
			continue
		}
		n++
	}
	log.Printf("[Scheduler] recovered %d of %d queued jobs\n", n, len(pending))
	return n, nil
}
