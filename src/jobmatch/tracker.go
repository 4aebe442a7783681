// Package jobmatch shares jobs with a crew, scores them against crew preferences
// and tracks each member's response until the share expires.
package jobmatch

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const dueBatch = 100

type Repository interface {
	CreateJobNotification(ctx context.Context, j *models.JobNotification) error
	GetJobNotification(ctx context.Context, crewID, id string) (*models.JobNotification, error)
	MutateJobNotification(ctx context.Context, crewID, id string, fn func(*models.JobNotification) error) (*models.JobNotification, error)
	ListJobNotifications(ctx context.Context, crewID string) ([]*models.JobNotification, error)
	ListDueJobNotifications(ctx context.Context, before time.Time, limit int) ([]*models.JobNotification, error)
}

type Crews interface {
	Authorize(ctx context.Context, crewID, userID string, p types.Permission) error
	RequireMember(ctx context.Context, crewID, userID string) error
	MemberIDs(ctx context.Context, crewID string) ([]string, error)
	Preferences(ctx context.Context, crewID string) (types.CrewPreferences, error)
}

// ExpiryScheduler arranges for Expire to run at the share's expiry.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, crewID, jobNotificationID string, at time.Time) error
}

type Tracker struct {
	repo      Repository
	crews     Crews
	bus       events.Publisher
	scheduler ExpiryScheduler
	log       logrus.FieldLogger
	now       func() time.Time
	ttl       time.Duration
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithShareTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

func NewTracker(repo Repository, crews Crews, bus events.Publisher, log logrus.FieldLogger, opts ...Option) *Tracker {
	t := &Tracker{
		repo:  repo,
		crews: crews,
		bus:   bus,
		log:   log.WithField("component", "jobmatch"),
		now:   time.Now,
		ttl:   config.DEFAULT_JOB_SHARE_TTL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetScheduler is called once the scheduler, which calls back into Expire, exists.
func (t *Tracker) SetScheduler(s ExpiryScheduler) {
	t.scheduler = s
}

type ShareInput struct {
	Job        models.JobSummary
	Message    string
	IsPriority bool
	ExpiresAt  *time.Time
}

// ShareJob records a new share. Sharing the same job again creates a new record.
func (t *Tracker) ShareJob(ctx context.Context, crewID, sharerID string, in ShareInput) (*models.JobNotification, error) {
	const op = "ShareJob"
	if err := t.crews.Authorize(ctx, crewID, sharerID, types.PERM_SHARE_JOBS); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Job.Classification) == "" {
		return nil, types.ValidationFailed(op, "select a job classification")
	}
	if strings.TrimSpace(in.Job.Title) == "" {
		return nil, types.ValidationFailed(op, "job title is required")
	}
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, types.ValidationFailed(op, "expiry must be in the future")
		}
		expiresAt = in.ExpiresAt.UTC()
	}

	prefs, err := t.crews.Preferences(ctx, crewID)
	if err != nil {
		return nil, err
	}
	members, err := t.crews.MemberIDs(ctx, crewID)
	if err != nil {
		return nil, err
	}
	score, reasons := ComputeMatchScore(in.Job, prefs)

	responses := make(map[string]types.JobResponse, len(members))
	for _, id := range members {
		if id != sharerID {
			responses[id] = types.RESPONSE_PENDING
		}
	}
	j := &models.JobNotification{
		ID:              uuid.NewString(),
		CrewID:          crewID,
		JobID:           in.Job.JobID,
		SharerID:        sharerID,
		Message:         strings.TrimSpace(in.Message),
		Job:             in.Job,
		MatchScore:      score,
		MatchReasons:    reasons,
		MemberResponses: responses,
		ViewedBy:        map[string]time.Time{},
		AppliedBy:       map[string]time.Time{},
		ReadBy:          map[string]time.Time{},
		IsPriority:      in.IsPriority,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
		ScoredAt:        now,
	}
	if err := t.repo.CreateJobNotification(ctx, j); err != nil {
		return nil, err
	}

	e := events.NewEvent(types.EVENT_JOB_SHARED, crewID, sharerID, map[string]string{
		"jobNotificationId": j.ID,
		"jobTitle":          j.Job.Title,
		"company":           j.Job.Company,
		"matchScore":        strconv.Itoa(score),
		"note":              j.Message,
	})
	e.IsImportant = j.IsPriority
	t.emit(ctx, e)

	if t.scheduler != nil {
		if err := t.scheduler.ScheduleExpiry(ctx, crewID, j.ID, expiresAt); err != nil {
			t.log.WithFields(logrus.Fields{"crew_id": crewID, "job_notification_id": j.ID}).WithError(err).Warn("expiry scheduling failed, sweep will pick it up")
		}
	}
	t.log.WithFields(logrus.Fields{"crew_id": crewID, "job_notification_id": j.ID, "match_score": score}).Info("job shared")
	return j, nil
}

// RecordResponse stores accepted or declined. The first answer is final: repeating it
// is a no-op and changing it is a Conflict. Expired shares reject every answer.
func (t *Tracker) RecordResponse(ctx context.Context, crewID, id, userID string, response types.JobResponse) (*models.JobNotification, error) {
	const op = "RecordResponse"
	if err := t.crews.Authorize(ctx, crewID, userID, types.PERM_RESPOND_TO_JOBS); err != nil {
		return nil, err
	}
	if !response.Terminal() {
		return nil, types.ValidationFailed(op, "response must be accepted or declined")
	}
	changed := false
	j, err := t.repo.MutateJobNotification(ctx, crewID, id, func(j *models.JobNotification) error {
		if j.IsExpired(t.now()) {
			return types.NewError(types.KIND_EXPIRED, op, "job share expired")
		}
		current := j.ResponseOf(userID)
		if current == response {
			return nil
		}
		if current.Terminal() {
			return types.NewError(types.KIND_CONFLICT, op, "already %s", current)
		}
		if j.MemberResponses == nil {
			j.MemberResponses = map[string]types.JobResponse{}
		}
		j.MemberResponses[userID] = response
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed && j.SharerID != userID {
		e := events.NewEvent(types.EVENT_JOB_RESPONDED, crewID, userID, map[string]string{
			"jobNotificationId": j.ID,
			"jobTitle":          j.Job.Title,
			"response":          string(response),
		})
		e.RecipientID = j.SharerID
		t.emit(ctx, e)
	}
	return j, nil
}

// MarkViewed is allowed on expired shares.
func (t *Tracker) MarkViewed(ctx context.Context, crewID, id, userID string) (*models.JobNotification, error) {
	return t.stamp(ctx, "MarkViewed", crewID, id, userID, false, func(j *models.JobNotification) *map[string]time.Time { return &j.ViewedBy })
}

// MarkApplied is rejected once the share expired.
func (t *Tracker) MarkApplied(ctx context.Context, crewID, id, userID string) (*models.JobNotification, error) {
	return t.stamp(ctx, "MarkApplied", crewID, id, userID, true, func(j *models.JobNotification) *map[string]time.Time { return &j.AppliedBy })
}

// MarkRead is allowed on expired shares.
func (t *Tracker) MarkRead(ctx context.Context, crewID, id, userID string) (*models.JobNotification, error) {
	return t.stamp(ctx, "MarkRead", crewID, id, userID, false, func(j *models.JobNotification) *map[string]time.Time { return &j.ReadBy })
}

// stamp records the first time userID touched the share in the chosen map.
func (t *Tracker) stamp(ctx context.Context, op, crewID, id, userID string, rejectExpired bool, field func(*models.JobNotification) *map[string]time.Time) (*models.JobNotification, error) {
	if err := t.crews.RequireMember(ctx, crewID, userID); err != nil {
		return nil, err
	}
	return t.repo.MutateJobNotification(ctx, crewID, id, func(j *models.JobNotification) error {
		now := t.now()
		if rejectExpired && j.IsExpired(now) {
			return types.NewError(types.KIND_EXPIRED, op, "job share expired")
		}
		m := field(j)
		if *m == nil {
			*m = map[string]time.Time{}
		}
		if _, ok := (*m)[userID]; !ok {
			(*m)[userID] = now.UTC()
		}
		return nil
	})
}

func (t *Tracker) Get(ctx context.Context, crewID, id, userID string) (*models.JobNotification, error) {
	if err := t.crews.RequireMember(ctx, crewID, userID); err != nil {
		return nil, err
	}
	j, err := t.repo.GetJobNotification(ctx, crewID, id)
	if err != nil {
		return nil, err
	}
	j.Expired = j.IsExpired(t.now())
	return j, nil
}

// List returns the crew's shares, newest first.
func (t *Tracker) List(ctx context.Context, crewID, userID string) ([]*models.JobNotification, error) {
	if err := t.crews.RequireMember(ctx, crewID, userID); err != nil {
		return nil, err
	}
	list, err := t.repo.ListJobNotifications(ctx, crewID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	for _, j := range list {
		j.Expired = j.IsExpired(now)
	}
	return list, nil
}

// Expire flags the share as expired and announces it once.
func (t *Tracker) Expire(ctx context.Context, crewID, id string) error {
	changed := false
	j, err := t.repo.MutateJobNotification(ctx, crewID, id, func(j *models.JobNotification) error {
		if j.Expired {
			return nil
		}
		j.Expired = true
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		t.emit(ctx, events.NewEvent(types.EVENT_JOB_EXPIRED, crewID, "", map[string]string{
			"jobNotificationId": j.ID,
			"jobTitle":          j.Job.Title,
		}))
		t.log.WithFields(logrus.Fields{"crew_id": crewID, "job_notification_id": id}).Info("job share expired")
	}
	return nil
}

// ExpireDue expires every share past its expiry that is not flagged yet.
func (t *Tracker) ExpireDue(ctx context.Context) (int, error) {
	expired := 0
	for {
		due, err := t.repo.ListDueJobNotifications(ctx, t.now(), dueBatch)
		if err != nil {
			return expired, err
		}
		for _, j := range due {
			if err := t.Expire(ctx, j.CrewID, j.ID); err != nil {
				return expired, err
			}
			expired++
		}
		if len(due) < dueBatch {
			return expired, nil
		}
	}
}

// RescoreCrew recomputes scores of live shares after the crew's preferences changed.
func (t *Tracker) RescoreCrew(ctx context.Context, crewID string) (int, error) {
	prefs, err := t.crews.Preferences(ctx, crewID)
	if err != nil {
		return 0, err
	}
	list, err := t.repo.ListJobNotifications(ctx, crewID)
	if err != nil {
		return 0, err
	}
	now := t.now()
	rescored := 0
	for _, j := range list {
		if j.IsExpired(now) {
			continue
		}
		score, reasons := ComputeMatchScore(j.Job, prefs)
		_, err := t.repo.MutateJobNotification(ctx, crewID, j.ID, func(j *models.JobNotification) error {
			j.MatchScore = score
			j.MatchReasons = reasons
			j.ScoredAt = now.UTC()
			return nil
		})
		if err != nil {
			return rescored, err
		}
		rescored++
	}
	return rescored, nil
}

// HandleEvent is the bus handler.
func (t *Tracker) HandleEvent(ctx context.Context, e events.Event) error {
	if e.Type != types.EVENT_CREW_PREFERENCES_CHANGED {
		return nil
	}
	_, err := t.RescoreCrew(ctx, e.CrewID)
	return err
}

func (t *Tracker) emit(ctx context.Context, e events.Event) {
	if err := t.bus.Publish(ctx, e); err != nil {
		t.log.WithFields(logrus.Fields{"crew_id": e.CrewID, "event_type": e.Type}).WithError(err).Warn("event publish failed")
	}
}
