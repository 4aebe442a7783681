// Package membership owns crews, their members and the role/permission registry
// that every other component consults before mutating crew-scoped data.
package membership

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	CreateCrew(ctx context.Context, crew *models.Crew, owner *models.CrewMember) error
	GetCrew(ctx context.Context, crewID string) (*models.Crew, error)
	SaveCrew(ctx context.Context, crew *models.Crew) error
	GetMember(ctx context.Context, crewID, userID string) (*models.CrewMember, error)
	ListMembers(ctx context.Context, crewID string) ([]*models.CrewMember, error)
	PutMember(ctx context.Context, crewID string, m *models.CrewMember) error
	DeleteMember(ctx context.Context, crewID, userID string) error
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, crewID, id string) (*models.Invitation, error)
	SaveInvitation(ctx context.Context, inv *models.Invitation) error
	PendingInvitation(ctx context.Context, crewID, inviteeID string) (*models.Invitation, error)
}

// AuditLog records membership changes. Failures are logged, never returned.
type AuditLog interface {
	Record(ctx context.Context, entry *models.TrailLog) error
}

type InvitationMailer interface {
	SendInvitation(ctx context.Context, inv *models.Invitation) error
}

type Service struct {
	repo   Repository
	bus    events.Publisher
	audit  AuditLog
	mailer InvitationMailer
	log    logrus.FieldLogger
	now    func() time.Time

	inviteTTL time.Duration
}

type Option func(*Service)

func WithAuditLog(a AuditLog) Option {
	return func(s *Service) { s.audit = a }
}

func WithMailer(m InvitationMailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithInviteTTL(d time.Duration) Option {
	return func(s *Service) { s.inviteTTL = d }
}

func NewService(repo Repository, bus events.Publisher, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		bus:       bus,
		log:       log.WithField("component", "membership"),
		now:       time.Now,
		inviteTTL: config.DEFAULT_INVITE_TTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCrewInput struct {
	Name        string
	Description string
	Visibility  types.Visibility
	StormWork   bool
	Preferences *types.CrewPreferences
}

func (s *Service) CreateCrew(ctx context.Context, actorID string, in CreateCrewInput) (*models.Crew, error) {
	const op = "CreateCrew"
	if actorID == "" {
		return nil, types.ErrUnauthenticated
	}
	name, err := validateName(op, in.Name)
	if err != nil {
		return nil, err
	}
	if in.Visibility != "" && !in.Visibility.Valid() {
		return nil, types.ValidationFailed(op, "unknown visibility %q", in.Visibility)
	}
	now := s.now().UTC()
	crew := models.NewCrew(uuid.NewString(), name, strings.TrimSpace(in.Description), in.Visibility, actorID, now)
	crew.StormWork = in.StormWork
	if in.Preferences != nil {
		prefs, err := normalizePreferences(op, *in.Preferences)
		if err != nil {
			return nil, err
		}
		crew.Preferences = prefs
	}
	owner := models.NewCrewMember(crew.ID, actorID, types.ROLE_OWNER, now)
	if err := s.repo.CreateCrew(ctx, crew, owner); err != nil {
		return nil, err
	}
	s.record(ctx, models.TRAIL_CREW_CREATED, actorID, actorID, crew.ID, types.JSONB{"name": crew.Name})
	s.log.WithFields(logrus.Fields{"crew_id": crew.ID, "user_id": actorID}).Info("crew created")
	return crew, nil
}

// GetCrew returns the crew if the viewer may see it. Public crews are visible to everyone.
func (s *Service) GetCrew(ctx context.Context, viewerID, crewID string) (*models.Crew, error) {
	if viewerID == "" {
		return nil, types.ErrUnauthenticated
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if crew.Visibility != types.VISIBILITY_PUBLIC && !crew.HasMember(viewerID) {
		return nil, types.NewError(types.KIND_PERMISSION_DENIED, "GetCrew", "not a member of this crew")
	}
	return crew, nil
}

type UpdateCrewInput struct {
	Name        *string
	Description *string
	Visibility  *types.Visibility
	StormWork   *bool
	Preferences *types.CrewPreferences
}

func (s *Service) UpdateCrew(ctx context.Context, actorID, crewID string, in UpdateCrewInput) (*models.Crew, error) {
	const op = "UpdateCrew"
	if err := s.Authorize(ctx, crewID, actorID, types.PERM_EDIT_CREW); err != nil {
		return nil, err
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name, err := validateName(op, *in.Name)
		if err != nil {
			return nil, err
		}
		crew.Rename(name)
	}
	if in.Description != nil {
		crew.Description = strings.TrimSpace(*in.Description)
	}
	if in.Visibility != nil {
		if !in.Visibility.Valid() {
			return nil, types.ValidationFailed(op, "unknown visibility %q", *in.Visibility)
		}
		crew.Visibility = *in.Visibility
	}
	if in.StormWork != nil {
		crew.StormWork = *in.StormWork
	}
	prefsChanged := false
	if in.Preferences != nil {
		prefs, err := normalizePreferences(op, *in.Preferences)
		if err != nil {
			return nil, err
		}
		prefsChanged = true
		crew.Preferences = prefs
	}
	crew.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveCrew(ctx, crew); err != nil {
		return nil, err
	}
	s.record(ctx, models.TRAIL_CREW_UPDATED, actorID, crewID, crewID, nil)
	s.emit(ctx, events.NewEvent(types.EVENT_CREW_UPDATED, crewID, actorID, map[string]string{"crewName": crew.Name}))
	if prefsChanged {
		s.emit(ctx, events.NewEvent(types.EVENT_CREW_PREFERENCES_CHANGED, crewID, actorID, nil))
	}
	return crew, nil
}

// DeactivateCrew is a soft delete. Documents stay; every permission check fails afterwards.
func (s *Service) DeactivateCrew(ctx context.Context, actorID, crewID string) error {
	if err := s.Authorize(ctx, crewID, actorID, types.PERM_DEACTIVATE_CREW); err != nil {
		return err
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return err
	}
	crew.IsActive = false
	crew.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveCrew(ctx, crew); err != nil {
		return err
	}
	s.record(ctx, models.TRAIL_CREW_DEACTIVATED, actorID, crewID, crewID, nil)
	return nil
}

// GetRole returns the member's role and whether the user is a member at all.
func (s *Service) GetRole(ctx context.Context, crewID, userID string) (types.Role, bool, error) {
	m, err := s.repo.GetMember(ctx, crewID, userID)
	if errors.Is(err, types.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Role, true, nil
}

// Permissions derives the member's permission set. Inactive crews grant nothing.
func (s *Service) Permissions(ctx context.Context, crewID, userID string) (types.PermissionSet, error) {
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	if !crew.IsActive {
		return types.PermissionSet{}, nil
	}
	m, err := s.repo.GetMember(ctx, crewID, userID)
	if errors.Is(err, types.ErrNotFound) {
		return types.PermissionSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	return m.PermissionSet(), nil
}

func (s *Service) HasPermission(ctx context.Context, crewID, userID string, p types.Permission) (bool, error) {
	perms, err := s.Permissions(ctx, crewID, userID)
	if err != nil {
		return false, err
	}
	return perms.Has(p), nil
}

// Authorize fails with Unauthenticated, NotFound or PermissionDenied.
func (s *Service) Authorize(ctx context.Context, crewID, userID string, p types.Permission) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	ok, err := s.HasPermission(ctx, crewID, userID, p)
	if err != nil {
		return err
	}
	if !ok {
		return types.PermissionDenied("Authorize", p)
	}
	return nil
}

// RequireMember checks plain membership of an active crew.
func (s *Service) RequireMember(ctx context.Context, crewID, userID string) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return err
	}
	if !crew.IsActive || !crew.HasMember(userID) {
		return types.NewError(types.KIND_PERMISSION_DENIED, "RequireMember", "not a member of this crew")
	}
	return nil
}

// MemberIDs lists the current members of a crew.
func (s *Service) MemberIDs(ctx context.Context, crewID string) ([]string, error) {
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), crew.MemberIDs...), nil
}

func (s *Service) Preferences(ctx context.Context, crewID string) (types.CrewPreferences, error) {
	crew, err := s.repo.GetCrew(ctx, crewID)
	if err != nil {
		return types.CrewPreferences{}, err
	}
	return crew.Preferences, nil
}

func (s *Service) ListMembers(ctx context.Context, actorID, crewID string) ([]*models.CrewMember, error) {
	if err := s.RequireMember(ctx, crewID, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, crewID)
}

func validateName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", types.ValidationFailed(op, "crew name is required")
	}
	if utf8.RuneCountInString(name) > config.MAX_CREW_NAME_LENGTH {
		return "", types.ValidationFailed(op, "crew name must be at most %d characters", config.MAX_CREW_NAME_LENGTH)
	}
	return name, nil
}

func normalizePreferences(op string, p types.CrewPreferences) (types.CrewPreferences, error) {
	if p.MinHourlyRate < 0 || p.MaxDistanceMiles < 0 {
		return p, types.ValidationFailed(op, "rate and distance preferences cannot be negative")
	}
	if p.MatchThreshold == 0 {
		p.MatchThreshold = config.DEFAULT_MATCH_THRESHOLD
	}
	if p.MatchThreshold < 0 || p.MatchThreshold > 100 {
		return p, types.ValidationFailed(op, "match threshold must be between 0 and 100")
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if err := s.bus.Publish(ctx, e); err != nil {
		s.log.WithFields(logrus.Fields{"crew_id": e.CrewID, "event_type": e.Type}).WithError(err).Warn("event publish failed")
	}
}

func (s *Service) record(ctx context.Context, t models.TrailType, initiator, subject, crewID string, details types.JSONB) {
	if s.audit == nil {
		return
	}
	entry := &models.TrailLog{Type: t, Initiator: initiator, Subject: subject, Group: crewID, Details: details}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.WithFields(logrus.Fields{"crew_id": crewID, "trail_type": t}).WithError(err).Warn("audit write failed")
	}
}
