// Package presence tracks online status and per-conversation typing pulses.
//
// Status and typing live in a TTL store so that every API instance sees the same
// state. The tracker keeps a local timer per typing key so it can publish the
// clear when a pulse decays without a refresh.
package presence

import (
	"context"
	"crewcomms/src/config"
	"crewcomms/src/events"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const offlineTTL = 24 * time.Hour

type Store interface {
	SetPresence(ctx context.Context, p *models.UserPresence, ttl time.Duration) error
	GetPresence(ctx context.Context, userID string) (*models.UserPresence, error)
	DeletePresence(ctx context.Context, userID string) error
	SetTyping(ctx context.Context, userID, conversationID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, userID, conversationID string) error
	TypingIn(ctx context.Context, userID string) ([]string, error)
}

// Conversations decides who may signal typing: sendMessages holders in crew
// channels, participants in direct conversations.
type Conversations interface {
	CanPost(ctx context.Context, conversationID, userID string) error
}

type typingKey struct {
	userID         string
	conversationID string
}

type typingState struct {
	gen       uint64
	timer     *time.Timer
	lastWrite time.Time
}

type Tracker struct {
	store         Store
	conversations Conversations
	hub           *events.Hub[models.UserPresence]
	log   logrus.FieldLogger
	now   func() time.Time

	typingTTL    time.Duration
	debounce     time.Duration
	heartbeatTTL time.Duration

	mu      sync.Mutex
	gen     uint64
	typing  map[typingKey]*typingState
	lastHit map[string]time.Time
}

type Option func(*Tracker)

func WithTypingTTL(d time.Duration) Option {
	return func(t *Tracker) { t.typingTTL = d }
}

func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) { t.debounce = d }
}

func WithHeartbeatTTL(d time.Duration) Option {
	return func(t *Tracker) { t.heartbeatTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithConversations enables the posting check on typing pulses.
func WithConversations(c Conversations) Option {
	return func(t *Tracker) { t.conversations = c }
}

func NewTracker(store Store, log logrus.FieldLogger, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		hub:          events.NewHub[models.UserPresence](),
		log:          log.WithField("component", "presence"),
		now:          time.Now,
		typingTTL:    config.DEFAULT_TYPING_TTL,
		debounce:     config.DEFAULT_TYPING_DEBOUNCE,
		heartbeatTTL: config.DEFAULT_HEARTBEAT_TTL,
		typing:       map[typingKey]*typingState{},
		lastHit:      map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers fn for every presence change of userID.
func (t *Tracker) Subscribe(userID string, fn func(models.UserPresence)) events.CancelFunc {
	return t.hub.Subscribe(userID, fn)
}

// Get returns the current snapshot. Unknown or expired users are offline.
func (t *Tracker) Get(ctx context.Context, userID string) (*models.UserPresence, error) {
	p, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &models.UserPresence{UserID: userID, Status: types.PRESENCE_OFFLINE}
	}
	typingIn, err := t.store.TypingIn(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.TypingIn = typingIn
	p.IsTyping = len(typingIn) > 0
	return p, nil
}

func (t *Tracker) SetStatus(ctx context.Context, userID string, status types.PresenceStatus) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	if !status.Valid() {
		return types.ValidationFailed("SetStatus", "unknown status %q", status)
	}
	if status == types.PRESENCE_OFFLINE {
		return t.goOffline(ctx, userID)
	}
	now := t.now().UTC()
	p := &models.UserPresence{UserID: userID, Status: status, LastSeen: now}
	if err := t.store.SetPresence(ctx, p, t.heartbeatTTL); err != nil {
		return err
	}
	t.mu.Lock()
	t.lastHit[userID] = now
	t.mu.Unlock()
	t.publish(ctx, userID)
	return nil
}

// Heartbeat refreshes the status TTL. A user without a live status comes back online.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	current, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		return err
	}
	now := t.now().UTC()
	changed := current == nil || current.Status == types.PRESENCE_OFFLINE
	p := &models.UserPresence{UserID: userID, Status: types.PRESENCE_ONLINE, LastSeen: now}
	if !changed {
		p.Status = current.Status
	}
	if err := t.store.SetPresence(ctx, p, t.heartbeatTTL); err != nil {
		return err
	}
	t.mu.Lock()
	t.lastHit[userID] = now
	t.mu.Unlock()
	if changed {
		t.publish(ctx, userID)
	}
	return nil
}

// SetTyping records a typing pulse. The first pulse publishes at once, refreshes
// inside the debounce window only extend the local timer, and the pulse clears
// itself after the typing TTL. isTyping=false clears immediately.
// The crew comes from the conversation id; a crewID that names another crew is rejected.
func (t *Tracker) SetTyping(ctx context.Context, crewID, conversationID, userID string, isTyping bool) error {
	const op = "SetTyping"
	if userID == "" {
		return types.ErrUnauthenticated
	}
	if conversationID == "" {
		return types.ValidationFailed(op, "conversation is required")
	}
	kind, convCrewID, ok := models.ParseConversationID(conversationID)
	if !ok {
		return types.NotFound(op, "conversation", conversationID)
	}
	if crewID != "" && (kind != types.CONVERSATION_CREW || convCrewID != crewID) {
		return types.ValidationFailed(op, "conversation %s is not a channel of crew %s", conversationID, crewID)
	}
	if t.conversations != nil {
		if err := t.conversations.CanPost(ctx, conversationID, userID); err != nil {
			return err
		}
	}
	key := typingKey{userID: userID, conversationID: conversationID}
	if !isTyping {
		if t.dropTyping(key) {
			if err := t.store.ClearTyping(ctx, userID, conversationID); err != nil {
				return err
			}
			t.publish(ctx, userID)
			return nil
		}
		return t.store.ClearTyping(ctx, userID, conversationID)
	}

	now := t.now()
	t.mu.Lock()
	st, active := t.typing[key]
	if active {
		st.timer.Stop()
	} else {
		st = &typingState{}
		t.typing[key] = st
	}
	t.gen++
	st.gen = t.gen
	gen := st.gen
	st.timer = time.AfterFunc(t.typingTTL, func() { t.expireTyping(key, gen) })
	coalesce := active && now.Sub(st.lastWrite) < t.debounce
	if !coalesce {
		st.lastWrite = now
	}
	t.mu.Unlock()

	if coalesce {
		return nil
	}
	if err := t.store.SetTyping(ctx, userID, conversationID, t.typingTTL); err != nil {
		t.dropTyping(key)
		return err
	}
	if !active {
		t.publish(ctx, userID)
	}
	return nil
}

func (t *Tracker) dropTyping(key typingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.typing[key]
	if !ok {
		return false
	}
	st.timer.Stop()
	delete(t.typing, key)
	return true
}

func (t *Tracker) expireTyping(key typingKey, gen uint64) {
	t.mu.Lock()
	st, ok := t.typing[key]
	if !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	t.mu.Unlock()

	ctx := context.Background()
	if err := t.store.ClearTyping(ctx, key.userID, key.conversationID); err != nil {
		t.log.WithFields(logrus.Fields{"user_id": key.userID, "conversation_id": key.conversationID}).WithError(err).Warn("[Presence] typing clear failed")
	}
	t.publish(ctx, key.userID)
}

// Disconnect drops every typing pulse of the user and marks them offline.
func (t *Tracker) Disconnect(ctx context.Context, userID string) error {
	if userID == "" {
		return types.ErrUnauthenticated
	}
	return t.goOffline(ctx, userID)
}

func (t *Tracker) goOffline(ctx context.Context, userID string) error {
	t.mu.Lock()
	for key, st := range t.typing {
		if key.userID == userID {
			st.timer.Stop()
			delete(t.typing, key)
		}
	}
	delete(t.lastHit, userID)
	t.mu.Unlock()

	typingIn, err := t.store.TypingIn(ctx, userID)
	if err != nil {
		return err
	}
	for _, conv := range typingIn {
		if err := t.store.ClearTyping(ctx, userID, conv); err != nil {
			return err
		}
	}
	p := &models.UserPresence{UserID: userID, Status: types.PRESENCE_OFFLINE, LastSeen: t.now().UTC()}
	if err := t.store.SetPresence(ctx, p, offlineTTL); err != nil {
		return err
	}
	t.publish(ctx, userID)
	return nil
}

// SweepStale marks users offline whose last heartbeat is older than the heartbeat TTL.
// Users refreshed through another instance are left alone.
func (t *Tracker) SweepStale(ctx context.Context) int {
	cutoff := t.now().Add(-t.heartbeatTTL)
	t.mu.Lock()
	var stale []string
	for userID, at := range t.lastHit {
		if !at.After(cutoff) {
			stale = append(stale, userID)
		}
	}
	t.mu.Unlock()

	swept := 0
	for _, userID := range stale {
		p, err := t.store.GetPresence(ctx, userID)
		if err != nil {
			t.log.WithField("user_id", userID).WithError(err).Warn("[Presence] sweep read failed")
			continue
		}
		if p != nil && p.Status != types.PRESENCE_OFFLINE && p.LastSeen.After(cutoff) {
			t.mu.Lock()
			t.lastHit[userID] = p.LastSeen
			t.mu.Unlock()
			continue
		}
		if err := t.goOffline(ctx, userID); err != nil {
			t.log.WithField("user_id", userID).WithError(err).Warn("[Presence] sweep failed")
			continue
		}
		swept++
	}
	if swept > 0 {
		t.log.WithField("count", swept).Info("[Presence] stale users marked offline")
	}
	return swept
}

func (t *Tracker) publish(ctx context.Context, userID string) {
	if t.hub.Subscribers(userID) == 0 {
		return
	}
	p, err := t.Get(ctx, userID)
	if err != nil {
		t.log.WithField("user_id", userID).WithError(err).Warn("[Presence] snapshot failed")
		return
	}
	t.hub.Publish(userID, *p)
}
