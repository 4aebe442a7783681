// Package notification turns crew events into stored, per-recipient notifications,
// fans them out to live subscribers and hands them to the push collaborator.
package notification

import (
	"context"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	CreateNotification(ctx context.Context, n *models.CrewNotification) error
	GetNotification(ctx context.Context, crewID, id string) (*models.CrewNotification, error)
	UpdateNotification(ctx context.Context, crewID, id string, fn func(*models.CrewNotification) error) (*models.CrewNotification, error)
	DeleteNotification(ctx context.Context, crewID, id string) error
	DeleteAllNotifications(ctx context.Context, crewID string) (int, error)
	ListNotifications(ctx context.Context, crewID string) ([]*models.CrewNotification, error)
	ListByJobNotification(ctx context.Context, crewID, jobNotificationID string) ([]*models.CrewNotification, error)
}

type Crews interface {
	Authorize(ctx context.Context, crewID, userID string, p types.Permission) error
	RequireMember(ctx context.Context, crewID, userID string) error
	MemberIDs(ctx context.Context, crewID string) ([]string, error)
}

// Pusher is the push/toast collaborator. Delivery is best effort.
type Pusher interface {
	Notify(ctx context.Context, userIDs []string, title, message string, severity types.Severity, data map[string]string) error
}

type Dispatcher struct {
	repo    Repository
	crews   Crews
	pusher  Pusher
	userHub *events.Hub[*models.CrewNotification]
	crewHub *events.Hub[*models.CrewNotification]
	log     logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Dispatcher)

func WithPusher(p Pusher) Option {
	return func(d *Dispatcher) { d.pusher = p }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(repo Repository, crews Crews, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		repo:    repo,
		crews:   crews,
		userHub: events.NewHub[*models.CrewNotification](),
		crewHub: events.NewHub[*models.CrewNotification](),
		log:     log.WithField("component", "notification"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPusher attaches the push collaborator once its client is available.
func (d *Dispatcher) SetPusher(p Pusher) {
	d.pusher = p
}

// HandleEvent is the bus handler.
func (d *Dispatcher) HandleEvent(ctx context.Context, e events.Event) error {
	_, err := d.Publish(ctx, e.CrewID, e)
	return err
}

// Publish renders the event, stores one notification for its audience and fans it out.
// Addressed events reach only their recipient; crew-wide events reach every member
// except the actor. Events with nobody to notify return a nil notification.
func (d *Dispatcher) Publish(ctx context.Context, crewID string, e events.Event) (*models.CrewNotification, error) {
	switch e.Type {
	case types.EVENT_JOB_EXPIRED:
		_, err := d.MarkJobExpired(ctx, crewID, e.Data["jobNotificationId"])
		return nil, err
	case types.EVENT_CREW_PREFERENCES_CHANGED:
		return nil, nil
	}
	tpl, ok := templates[e.Type]
	if !ok {
		d.log.WithField("event_type", e.Type).Warn("no template for event")
		return nil, nil
	}

	recipients, err := d.audience(ctx, crewID, e)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data["crewId"] = crewID
	n := &models.CrewNotification{
		ID:                uuid.NewString(),
		CrewID:            crewID,
		Type:              e.Type,
		ActorID:           e.ActorID,
		RecipientIDs:      recipients,
		Title:             pick(e.Data["title"], render(tpl.Title, data)),
		Message:           pick(e.Data["message"], render(tpl.Message, data)),
		Icon:              tpl.Icon,
		Color:             tpl.Color,
		Timestamp:         d.now().UTC(),
		IsImportant:       e.IsImportant,
		ActionURL:         pick(e.Data["actionUrl"], render(tpl.ActionURL, data)),
		JobNotificationID: e.Data["jobNotificationId"],
		ReadBy:            map[string]time.Time{},
		Data:              e.Data,
	}

	if err := d.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	for _, uid := range recipients {
		d.userHub.Publish(uid, n.ForUser(uid))
	}
	d.crewHub.Publish(crewID, n)
	d.push(ctx, n, tpl.Severity)
	return n, nil
}

func (d *Dispatcher) audience(ctx context.Context, crewID string, e events.Event) ([]string, error) {
	if e.RecipientID != "" {
		return []string{e.RecipientID}, nil
	}
	members, err := d.crews.MemberIDs(ctx, crewID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, id := range members {
		if id == e.ActorID || id == e.Data["excludeId"] {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (d *Dispatcher) push(ctx context.Context, n *models.CrewNotification, severity types.Severity) {
	if d.pusher == nil {
		return
	}
	data := map[string]string{
		"crewId":         n.CrewID,
		"type":           string(n.Type),
		"notificationId": n.ID,
		"actionUrl":      n.ActionURL,
	}
	if err := d.pusher.Notify(ctx, n.RecipientIDs, n.Title, n.Message, severity, data); err != nil {
		d.log.WithFields(logrus.Fields{"crew_id": n.CrewID, "notification_id": n.ID}).WithError(err).Warn("push failed")
	}
}

type AnnouncementInput struct {
	Title       string
	Message     string
	IsImportant bool
	ActionURL   string
}

// PublishAnnouncement sends a custom notification to the whole crew.
func (d *Dispatcher) PublishAnnouncement(ctx context.Context, crewID, actorID string, in AnnouncementInput) (*models.CrewNotification, error) {
	const op = "PublishAnnouncement"
	if err := d.crews.Authorize(ctx, crewID, actorID, types.PERM_PUBLISH_NOTIFICATIONS); err != nil {
		return nil, err
	}
	title, message := strings.TrimSpace(in.Title), strings.TrimSpace(in.Message)
	if title == "" || message == "" {
		return nil, types.ValidationFailed(op, "title and message are required")
	}
	data := map[string]string{"title": title, "message": message}
	if in.ActionURL != "" {
		data["actionUrl"] = in.ActionURL
	}
	e := events.NewEvent(types.EVENT_ANNOUNCEMENT, crewID, actorID, data)
	e.IsImportant = in.IsImportant
	return d.Publish(ctx, crewID, e)
}

// SubscribeUser delivers every notification addressed to userID, across crews.
func (d *Dispatcher) SubscribeUser(userID string, fn func(*models.CrewNotification)) events.CancelFunc {
	return d.userHub.Subscribe(userID, fn)
}

// SubscribeCrew delivers the crew's new and updated notifications that are addressed to the viewer.
func (d *Dispatcher) SubscribeCrew(ctx context.Context, crewID, userID string, fn func(*models.CrewNotification)) (events.CancelFunc, error) {
	if err := d.crews.RequireMember(ctx, crewID, userID); err != nil {
		return nil, err
	}
	return d.crewHub.Subscribe(crewID, func(n *models.CrewNotification) {
		if n.AddressedTo(userID) {
			fn(n.ForUser(userID))
		}
	}), nil
}

// List returns the viewer's notifications, important first, then newest.
func (d *Dispatcher) List(ctx context.Context, crewID, userID string) ([]*models.CrewNotification, error) {
	if err := d.crews.RequireMember(ctx, crewID, userID); err != nil {
		return nil, err
	}
	all, err := d.repo.ListNotifications(ctx, crewID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CrewNotification, 0, len(all))
	for _, n := range all {
		if n.AddressedTo(userID) {
			out = append(out, n.ForUser(userID))
		}
	}
	models.SortNotifications(out)
	return out, nil
}

// UnreadCount is derived from the stored read flags on every call.
func (d *Dispatcher) UnreadCount(ctx context.Context, crewID, userID string) (int, error) {
	list, err := d.List(ctx, crewID, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead is idempotent. Notifications not addressed to the user are NotFound.
func (d *Dispatcher) MarkRead(ctx context.Context, crewID, notificationID, userID string) (*models.CrewNotification, error) {
	if userID == "" {
		return nil, types.ErrUnauthenticated
	}
	changed := false
	n, err := d.repo.UpdateNotification(ctx, crewID, notificationID, func(n *models.CrewNotification) error {
		if !n.AddressedTo(userID) {
			return types.NotFound("MarkRead", "notification", notificationID)
		}
		if n.ReadByUser(userID) {
			return nil
		}
		if n.ReadBy == nil {
			n.ReadBy = map[string]time.Time{}
		}
		n.ReadBy[userID] = d.now().UTC()
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		d.userHub.Publish(userID, n.ForUser(userID))
	}
	return n.ForUser(userID), nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, crewID, userID string) (int, error) {
	list, err := d.List(ctx, crewID, userID)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, n := range list {
		if n.IsRead {
			continue
		}
		if _, err := d.MarkRead(ctx, crewID, n.ID, userID); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// Delete removes the notification for userID only. The document goes once nobody is left.
func (d *Dispatcher) Delete(ctx context.Context, crewID, notificationID, userID string) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	n, err := d.repo.UpdateNotification(ctx, crewID, notificationID, func(n *models.CrewNotification) error {
		if !n.AddressedTo(userID) {
			return types.NotFound("Delete", "notification", notificationID)
		}
		kept := n.RecipientIDs[:0:0]
		for _, id := range n.RecipientIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		n.RecipientIDs = kept
		delete(n.ReadBy, userID)
		return nil
	})
	if err != nil {
		return err
	}
	if len(n.RecipientIDs) == 0 {
		return d.repo.DeleteNotification(ctx, crewID, notificationID)
	}
	return nil
}

// ClearAll deletes every notification of the crew.
func (d *Dispatcher) ClearAll(ctx context.Context, crewID, actorID string) (int, error) {
	if err := d.crews.Authorize(ctx, crewID, actorID, types.PERM_CLEAR_NOTIFICATIONS); err != nil {
		return 0, err
	}
	n, err := d.repo.DeleteAllNotifications(ctx, crewID)
	if err != nil {
		return 0, err
	}
	d.log.WithFields(logrus.Fields{"crew_id": crewID, "user_id": actorID, "count": n}).Info("notifications cleared")
	return n, nil
}

// MarkJobExpired makes the notifications of an expired job share read-only. They are kept.
func (d *Dispatcher) MarkJobExpired(ctx context.Context, crewID, jobNotificationID string) (int, error) {
	if jobNotificationID == "" {
		return 0, nil
	}
	list, err := d.repo.ListByJobNotification(ctx, crewID, jobNotificationID)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, n := range list {
		if n.ReadOnly {
			continue
		}
		got, err := d.repo.UpdateNotification(ctx, crewID, n.ID, func(n *models.CrewNotification) error {
			n.ReadOnly = true
			return nil
		})
		if err != nil {
			return updated, err
		}
		updated++
		d.crewHub.Publish(crewID, got)
	}
	return updated, nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
