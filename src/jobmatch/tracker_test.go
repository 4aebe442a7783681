package jobmatch

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/membership"
	"crewcomms/src/models"
	"crewcomms/src/repositories/memory"
	"crewcomms/src/types"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
)

type scheduled struct {
	crewID string
	id     string
	at     time.Time
}

type fakeScheduler struct {
	calls []scheduled
	err   error
}

func (f *fakeScheduler) ScheduleExpiry(ctx context.Context, crewID, id string, at time.Time) error {
	f.calls = append(f.calls, scheduled{crewID: crewID, id: id, at: at})
	return f.err
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(ctx context.Context, e events.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) ofType(t types.CrewEventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type TrackerTestSuite struct {
	suite.Suite
	ctx       context.Context
	crews     *membership.Service
	tracker   *Tracker
	scheduler *fakeScheduler
	log       *eventLog
	now       time.Time
	crewID    string
}

func (s *TrackerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	logger, _ := test.NewNullLogger()
	bus := events.NewLocalBus(logger)
	s.crews = membership.NewService(memory.NewCrewRepository(), bus, logger, membership.WithClock(clock))
	s.tracker = NewTracker(memory.NewJobNotificationRepository(), s.crews, bus, logger, WithClock(clock))
	s.scheduler = &fakeScheduler{}
	s.tracker.SetScheduler(s.scheduler)

	crew, err := s.crews.CreateCrew(s.ctx, "foreman", membership.CreateCrewInput{
		Name:        "Lineman Crew 12",
		Visibility:  types.VISIBILITY_PUBLIC,
		Preferences: &types.CrewPreferences{JobTypes: []string{"Journeyman Lineman"}, MinHourlyRate: 45},
	})
	s.Require().NoError(err)
	s.crewID = crew.ID
	for _, uid := range []string{"alex", "bea"} {
		_, err := s.crews.JoinCrew(s.ctx, uid, crew.ID)
		s.Require().NoError(err)
	}

	s.log = &eventLog{}
	bus.Handle(s.log.handle)
	bus.Handle(s.tracker.HandleEvent)
}

func (s *TrackerTestSuite) share(in ShareInput) *models.JobNotification {
	j, err := s.tracker.ShareJob(s.ctx, s.crewID, "foreman", in)
	s.Require().NoError(err)
	return j
}

func (s *TrackerTestSuite) TestShareScoresAgainstCrewPreferences() {
	j := s.share(ShareInput{Job: linemanJob(), Message: "Good money"})
	s.GreaterOrEqual(j.MatchScore, 60)
	s.False(j.IsPriority)
	s.Equal(s.now.Add(7*24*time.Hour), j.ExpiresAt)
	s.Equal(map[string]types.JobResponse{"alex": types.RESPONSE_PENDING, "bea": types.RESPONSE_PENDING}, j.MemberResponses)

	shared := s.log.ofType(types.EVENT_JOB_SHARED)
	s.Require().Len(shared, 1)
	s.False(shared[0].IsImportant)
	s.Equal(j.ID, shared[0].Data["jobNotificationId"])

	s.Require().Len(s.scheduler.calls, 1)
	s.Equal(j.ExpiresAt, s.scheduler.calls[0].at)
}

func (s *TrackerTestSuite) TestPriorityOnlyWhenFlagged() {
	j := s.share(ShareInput{Job: linemanJob(), IsPriority: true})
	s.True(j.IsPriority)
	shared := s.log.ofType(types.EVENT_JOB_SHARED)
	s.Require().Len(shared, 1)
	s.True(shared[0].IsImportant)
}

func (s *TrackerTestSuite) TestShareValidation() {
	job := linemanJob()
	job.Classification = ""
	_, err := s.tracker.ShareJob(s.ctx, s.crewID, "foreman", ShareInput{Job: job})
	s.ErrorIs(err, types.ErrValidationFailed)

	past := s.now.Add(-time.Minute)
	_, err = s.tracker.ShareJob(s.ctx, s.crewID, "foreman", ShareInput{Job: linemanJob(), ExpiresAt: &past})
	s.ErrorIs(err, types.ErrValidationFailed)

	_, err = s.tracker.ShareJob(s.ctx, s.crewID, "alex", ShareInput{Job: linemanJob()})
	s.ErrorIs(err, types.ErrPermissionDenied)
}

func (s *TrackerTestSuite) TestReshareCreatesNewRecord() {
	first := s.share(ShareInput{Job: linemanJob()})
	_, err := s.tracker.RecordResponse(s.ctx, s.crewID, first.ID, "alex", types.RESPONSE_DECLINED)
	s.Require().NoError(err)

	second := s.share(ShareInput{Job: linemanJob()})
	s.NotEqual(first.ID, second.ID)
	s.Equal(types.RESPONSE_PENDING, second.ResponseOf("alex"))

	again, err := s.tracker.Get(s.ctx, s.crewID, first.ID, "alex")
	s.Require().NoError(err)
	s.Equal(types.RESPONSE_DECLINED, again.ResponseOf("alex"))

	list, err := s.tracker.List(s.ctx, s.crewID, "bea")
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *TrackerTestSuite) TestResponseIsTerminal() {
	j := s.share(ShareInput{Job: linemanJob()})

	got, err := s.tracker.RecordResponse(s.ctx, s.crewID, j.ID, "alex", types.RESPONSE_ACCEPTED)
	s.Require().NoError(err)
	s.Equal(types.RESPONSE_ACCEPTED, got.ResponseOf("alex"))

	_, err = s.tracker.RecordResponse(s.ctx, s.crewID, j.ID, "alex", types.RESPONSE_ACCEPTED)
	s.NoError(err)

	_, err = s.tracker.RecordResponse(s.ctx, s.crewID, j.ID, "alex", types.RESPONSE_DECLINED)
	s.ErrorIs(err, types.ErrConflict)

	_, err = s.tracker.RecordResponse(s.ctx, s.crewID, j.ID, "bea", types.RESPONSE_PENDING)
	s.ErrorIs(err, types.ErrValidationFailed)

	final, err := s.tracker.Get(s.ctx, s.crewID, j.ID, "foreman")
	s.Require().NoError(err)
	s.Equal(types.RESPONSE_ACCEPTED, final.ResponseOf("alex"))

	responded := s.log.ofType(types.EVENT_JOB_RESPONDED)
	s.Require().Len(responded, 1)
	s.Equal("foreman", responded[0].RecipientID)
	s.Equal("alex", responded[0].ActorID)
}

func (s *TrackerTestSuite) TestExpiredRejectsResponseButAllowsRead() {
	j := s.share(ShareInput{Job: linemanJob()})
	s.now = j.ExpiresAt.Add(time.Second)

	_, err := s.tracker.RecordResponse(s.ctx, s.crewID, j.ID, "alex", types.RESPONSE_ACCEPTED)
	s.ErrorIs(err, types.ErrExpired)

	_, err = s.tracker.MarkApplied(s.ctx, s.crewID, j.ID, "alex")
	s.ErrorIs(err, types.ErrExpired)

	read, err := s.tracker.MarkRead(s.ctx, s.crewID, j.ID, "alex")
	s.Require().NoError(err)
	s.Contains(read.ReadBy, "alex")

	viewed, err := s.tracker.MarkViewed(s.ctx, s.crewID, j.ID, "bea")
	s.Require().NoError(err)
	s.Contains(viewed.ViewedBy, "bea")
}

func (s *TrackerTestSuite) TestViewedAndAppliedKeepFirstStamp() {
	j := s.share(ShareInput{Job: linemanJob()})
	first, err := s.tracker.MarkViewed(s.ctx, s.crewID, j.ID, "alex")
	s.Require().NoError(err)
	s.now = s.now.Add(time.Hour)
	second, err := s.tracker.MarkViewed(s.ctx, s.crewID, j.ID, "alex")
	s.Require().NoError(err)
	s.Equal(first.ViewedBy["alex"], second.ViewedBy["alex"])

	applied, err := s.tracker.MarkApplied(s.ctx, s.crewID, j.ID, "alex")
	s.Require().NoError(err)
	s.Equal(s.now, applied.AppliedBy["alex"])

	_, err = s.tracker.MarkViewed(s.ctx, s.crewID, j.ID, "stranger")
	s.ErrorIs(err, types.ErrPermissionDenied)
}

func (s *TrackerTestSuite) TestExpireDueAnnouncesOnce() {
	j := s.share(ShareInput{Job: linemanJob()})
	s.now = j.ExpiresAt

	n, err := s.tracker.ExpireDue(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Require().NoError(s.tracker.Expire(s.ctx, s.crewID, j.ID))
	s.Len(s.log.ofType(types.EVENT_JOB_EXPIRED), 1)

	n, err = s.tracker.ExpireDue(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *TrackerTestSuite) TestSchedulerFailureDoesNotFailShare() {
	s.scheduler.err = errors.New("scheduler offline")
	j := s.share(ShareInput{Job: linemanJob()})
	s.NotEmpty(j.ID)
}

func (s *TrackerTestSuite) TestPreferenceChangeRescoresLiveShares() {
	job := linemanJob()
	job.Classification = "Wireman"
	j := s.share(ShareInput{Job: job})
	before := j.MatchScore

	_, err := s.crews.UpdateCrew(s.ctx, "foreman", s.crewID, membership.UpdateCrewInput{
		Preferences: &types.CrewPreferences{JobTypes: []string{"Wireman"}, MinHourlyRate: 45},
	})
	s.Require().NoError(err)

	after, err := s.tracker.Get(s.ctx, s.crewID, j.ID, "alex")
	s.Require().NoError(err)
	s.Greater(after.MatchScore, before)
}

func TestTrackerTestSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}
