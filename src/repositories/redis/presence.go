package redis

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/presence"
	"crewcomms/src/types"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ presence.Store = (*PresenceStore)(nil)

func presenceKey(userID string) string {
	return "presence:" + userID
}

func typingKey(userID string) string {
	return "typing:" + userID
}

// PresenceStore keeps one expiring JSON value per user and a sorted set of typing
// conversations scored by their expiry in unix millis.
type PresenceStore struct {
	rd  *redis.Client
	now func() time.Time
}

func NewPresenceStore(rd *redis.Client) *PresenceStore {
	return &PresenceStore{rd: rd, now: time.Now}
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, op, err)
}

func (s *PresenceStore) SetPresence(ctx context.Context, p *models.UserPresence, ttl time.Duration) error {
	c := *p
	c.IsTyping = false
	c.TypingIn = nil
	b, err := json.Marshal(&c)
	if err != nil {
		return err
	}
	return wrap("SetPresence", s.rd.Set(ctx, presenceKey(p.UserID), b, ttl).Err())
}

func (s *PresenceStore) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	raw, err := s.rd.Get(ctx, presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("GetPresence", err)
	}
	var p models.UserPresence
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PresenceStore) DeletePresence(ctx context.Context, userID string) error {
	return wrap("DeletePresence", s.rd.Del(ctx, presenceKey(userID), typingKey(userID)).Err())
}

func (s *PresenceStore) SetTyping(ctx context.Context, userID, conversationID string, ttl time.Duration) error {
	key := typingKey(userID)
	expiry := float64(s.now().Add(ttl).UnixMilli())
	if err := s.rd.ZAdd(ctx, key, redis.Z{Score: expiry, Member: conversationID}).Err(); err != nil {
		return wrap("SetTyping", err)
	}
	return wrap("SetTyping", s.rd.PExpire(ctx, key, ttl).Err())
}

func (s *PresenceStore) ClearTyping(ctx context.Context, userID, conversationID string) error {
	return wrap("ClearTyping", s.rd.ZRem(ctx, typingKey(userID), conversationID).Err())
}

// TypingIn drops lapsed entries and returns the live ones in conversation id order.
func (s *PresenceStore) TypingIn(ctx context.Context, userID string) ([]string, error) {
	key := typingKey(userID)
	now := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.rd.ZRemRangeByScore(ctx, key, "-inf", now).Err(); err != nil {
		return nil, wrap("TypingIn", err)
	}
	convs, err := s.rd.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + now, Max: "+inf"}).Result()
	if err != nil {
		return nil, wrap("TypingIn", err)
	}
	sort.Strings(convs)
	return convs, nil
}
