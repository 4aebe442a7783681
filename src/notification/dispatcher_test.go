package notification

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type pushCall struct {
	userIDs []string
	title   string
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (p *fakePusher) Notify(ctx context.Context, userIDs []string, title, message string, severity types.Severity, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pushCall{userIDs: userIDs, title: title})
	return p.err
}

type DispatcherTestSuite struct {
	suite.Suite
	ctx    context.Context
	crews  *membership.Service
	repo   *memory.NotificationRepository
	pusher *fakePusher
	d      *Dispatcher
	crewID string
	clock  time.Time
}

func (s *DispatcherTestSuite) SetupTest() {
	s.ctx = context.Background()
	log, _ := test.NewNullLogger()
	bus := events.NewLocalBus(log)
	s.crews = membership.NewService(memory.NewCrewRepository(), bus, log)
	s.repo = memory.NewNotificationRepository()
	s.pusher = &fakePusher{}
	s.clock = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.d = NewDispatcher(s.repo, s.crews, log, WithPusher(s.pusher), WithClock(func() time.Time {
		s.clock = s.clock.Add(time.Second)
		return s.clock
	}))

	crew, err := s.crews.CreateCrew(s.ctx, "owner", membership.CreateCrewInput{Name: "Lineman Crew 12", Visibility: types.VISIBILITY_PUBLIC})
	s.Require().NoError(err)
	s.crewID = crew.ID
	for _, uid := range []string{"foreman", "apprentice", "op"} {
		_, err := s.crews.JoinCrew(s.ctx, uid, crew.ID)
		s.Require().NoError(err)
	}
	_, err = s.crews.UpdateMemberRole(s.ctx, "owner", crew.ID, "foreman", types.ROLE_FOREMAN, false)
	s.Require().NoError(err)

	bus.Handle(s.d.HandleEvent)
}

// Foreman promotes an apprentice; the apprentice gets a notification and nobody else does.
func (s *DispatcherTestSuite) TestRoleChangeNotifiesMember() {
	var live []*models.CrewNotification
	cancel := s.d.SubscribeUser("apprentice", func(n *models.CrewNotification) { live = append(live, n) })
	defer cancel()

	_, err := s.crews.UpdateMemberRole(s.ctx, "foreman", s.crewID, "apprentice", types.ROLE_JOURNEYMAN, false)
	s.Require().NoError(err)

	s.Require().Len(live, 1)
	s.Equal(types.EVENT_ROLE_CHANGED, live[0].Type)
	s.Equal("Your role is now Journeyman", live[0].Message)
	s.False(live[0].IsRead)

	list, err := s.d.List(s.ctx, s.crewID, "apprentice")
	s.Require().NoError(err)
	s.Require().Len(list, 1)

	others, err := s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Empty(others)
}

func (s *DispatcherTestSuite) TestAnnouncedRoleChangeReachesCrew() {
	_, err := s.crews.UpdateMemberRole(s.ctx, "owner", s.crewID, "apprentice", types.ROLE_OPERATOR, true)
	s.Require().NoError(err)

	mine, err := s.d.List(s.ctx, s.crewID, "apprentice")
	s.Require().NoError(err)
	s.Len(mine, 1)

	theirs, err := s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Require().Len(theirs, 1)
	s.Equal("A crew member is now Operator", theirs[0].Message)

	actor, err := s.d.List(s.ctx, s.crewID, "owner")
	s.Require().NoError(err)
	s.Empty(actor)
}

func (s *DispatcherTestSuite) TestPriorityFirstThenRecency() {
	first, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "Yard", Message: "old news"})
	s.Require().NoError(err)
	urgent, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "Storm", Message: "mobilize", IsImportant: true})
	s.Require().NoError(err)
	latest, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "Lunch", Message: "noon"})
	s.Require().NoError(err)

	list, err := s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal(urgent.ID, list[0].ID)
	s.Equal(latest.ID, list[1].ID)
	s.Equal(first.ID, list[2].ID)
}

func (s *DispatcherTestSuite) TestAnnouncementRules() {
	_, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "apprentice", AnnouncementInput{Title: "x", Message: "y"})
	s.ErrorIs(err, types.ErrPermissionDenied)

	_, err = s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: " ", Message: "y"})
	s.ErrorIs(err, types.ErrValidationFailed)

	n, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "Safety", Message: "Gloves on"})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"foreman", "apprentice", "op"}, n.RecipientIDs)
	s.Equal("Safety", n.Title)
	s.Require().NotEmpty(s.pusher.calls)
}

func (s *DispatcherTestSuite) TestMarkReadAndUnreadCount() {
	n, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "a", Message: "b"})
	s.Require().NoError(err)
	_, err = s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "c", Message: "d"})
	s.Require().NoError(err)

	count, err := s.d.UnreadCount(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Equal(2, count)

	read, err := s.d.MarkRead(s.ctx, s.crewID, n.ID, "op")
	s.Require().NoError(err)
	s.True(read.IsRead)
	_, err = s.d.MarkRead(s.ctx, s.crewID, n.ID, "op")
	s.Require().NoError(err)

	count, err = s.d.UnreadCount(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Equal(1, count)

	count, err = s.d.UnreadCount(s.ctx, s.crewID, "foreman")
	s.Require().NoError(err)
	s.Equal(2, count)

	_, err = s.d.MarkRead(s.ctx, s.crewID, n.ID, "owner")
	s.ErrorIs(err, types.ErrNotFound)

	marked, err := s.d.MarkAllRead(s.ctx, s.crewID, "foreman")
	s.Require().NoError(err)
	s.Equal(2, marked)
}

func (s *DispatcherTestSuite) TestDeleteIsPerRecipient() {
	n, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "a", Message: "b"})
	s.Require().NoError(err)

	s.Require().NoError(s.d.Delete(s.ctx, s.crewID, n.ID, "op"))
	list, err := s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Empty(list)
	list, err = s.d.List(s.ctx, s.crewID, "foreman")
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.d.Delete(s.ctx, s.crewID, n.ID, "foreman"))
	s.Require().NoError(s.d.Delete(s.ctx, s.crewID, n.ID, "apprentice"))
	_, err = s.repo.GetNotification(s.ctx, s.crewID, n.ID)
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *DispatcherTestSuite) TestClearAll() {
	_, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "a", Message: "b"})
	s.Require().NoError(err)

	_, err = s.d.ClearAll(s.ctx, s.crewID, "apprentice")
	s.ErrorIs(err, types.ErrPermissionDenied)

	n, err := s.d.ClearAll(s.ctx, s.crewID, "foreman")
	s.Require().NoError(err)
	s.Equal(1, n)
	list, err := s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *DispatcherTestSuite) TestJobExpiryMakesNotificationsReadOnly() {
	shared := events.NewEvent(types.EVENT_JOB_SHARED, s.crewID, "foreman", map[string]string{
		"jobNotificationId": "job-1",
		"jobTitle":          "Journeyman Lineman",
		"company":           "Acme Power",
		"matchScore":        "85",
	})
	n, err := s.d.Publish(s.ctx, s.crewID, shared)
	s.Require().NoError(err)
	s.Equal("Journeyman Lineman at Acme Power (85% match)", n.Message)
	s.False(n.ReadOnly)

	expired := events.NewEvent(types.EVENT_JOB_EXPIRED, s.crewID, "", map[string]string{"jobNotificationId": "job-1"})
	none, err := s.d.Publish(s.ctx, s.crewID, expired)
	s.Require().NoError(err)
	s.Nil(none)

	got, err := s.repo.GetNotification(s.ctx, s.crewID, n.ID)
	s.Require().NoError(err)
	s.True(got.ReadOnly)

	_, err = s.d.MarkRead(s.ctx, s.crewID, n.ID, "op")
	s.NoError(err)
}

func (s *DispatcherTestSuite) TestPushFailureDoesNotFailPublish() {
	s.pusher.err = errors.New("fcm down")
	n, err := s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "a", Message: "b"})
	s.Require().NoError(err)
	s.NotNil(n)
}

// A crew message is stored for every member but the sender, and pushed.
func (s *DispatcherTestSuite) TestChatMessageIsStoredAndPushed() {
	var live []*models.CrewNotification
	cancel := s.d.SubscribeUser("apprentice", func(n *models.CrewNotification) { live = append(live, n) })
	defer cancel()

	e := events.NewEvent(types.EVENT_MESSAGE_SENT, s.crewID, "op", map[string]string{"preview": "running late", "conversationId": "crew_x"})
	n, err := s.d.Publish(s.ctx, s.crewID, e)
	s.Require().NoError(err)
	s.Require().NotNil(n)
	s.Equal("running late", n.Message)
	s.Equal("/conversations/crew_x", n.ActionURL)
	s.ElementsMatch([]string{"owner", "foreman", "apprentice"}, n.RecipientIDs)
	s.Require().Len(s.pusher.calls, 1)
	s.ElementsMatch([]string{"owner", "foreman", "apprentice"}, s.pusher.calls[0].userIDs)
	s.Len(live, 1)

	list, err := s.d.List(s.ctx, s.crewID, "owner")
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(types.EVENT_MESSAGE_SENT, list[0].Type)
	s.False(list[0].IsRead)

	list, err = s.d.List(s.ctx, s.crewID, "op")
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *DispatcherTestSuite) TestSubscribeCrewFiltersToViewer() {
	_, err := s.d.SubscribeCrew(s.ctx, s.crewID, "stranger", func(*models.CrewNotification) {})
	s.ErrorIs(err, types.ErrPermissionDenied)

	var got []*models.CrewNotification
	cancel, err := s.d.SubscribeCrew(s.ctx, s.crewID, "owner", func(n *models.CrewNotification) { got = append(got, n) })
	s.Require().NoError(err)
	defer cancel()

	_, err = s.d.PublishAnnouncement(s.ctx, s.crewID, "owner", AnnouncementInput{Title: "a", Message: "b"})
	s.Require().NoError(err)
	s.Empty(got)

	_, err = s.d.PublishAnnouncement(s.ctx, s.crewID, "foreman", AnnouncementInput{Title: "c", Message: "d"})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func TestRenderFillsPlaceholders(t *testing.T) {
	assert.Equal(t, "Hi Sam!", render("Hi {name}!", map[string]string{"name": "Sam"}))
	assert.Equal(t, "Hi !", render("Hi {missing}!", nil))
	assert.Equal(t, "plain", render("plain", nil))
	assert.Equal(t, "open {brace", render("open {brace", nil))
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}
