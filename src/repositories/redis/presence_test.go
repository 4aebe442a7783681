package redis

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type PresenceStoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	mock  redismock.ClientMock
	store *PresenceStore
	now   time.Time
}

func (s *PresenceStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	var db *redis.Client
	db, s.mock = redismock.NewClientMock()
	s.store = NewPresenceStore(db)
	s.now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.now }
}

func (s *PresenceStoreTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *PresenceStoreTestSuite) TestSetPresenceStripsTyping() {
	p := &models.UserPresence{UserID: "alex", Status: types.PRESENCE_ONLINE, LastSeen: s.now, IsTyping: true, TypingIn: []string{"crew_c1"}}
	want, _ := json.Marshal(&models.UserPresence{UserID: "alex", Status: types.PRESENCE_ONLINE, LastSeen: s.now})
	s.mock.ExpectSet("presence:alex", want, time.Minute).SetVal("OK")
	s.NoError(s.store.SetPresence(s.ctx, p, time.Minute))
}

func (s *PresenceStoreTestSuite) TestGetPresence() {
	raw, _ := json.Marshal(&models.UserPresence{UserID: "alex", Status: types.PRESENCE_BUSY, LastSeen: s.now})
	s.mock.ExpectGet("presence:alex").SetVal(string(raw))
	p, err := s.store.GetPresence(s.ctx, "alex")
	s.Require().NoError(err)
	s.Equal(types.PRESENCE_BUSY, p.Status)
	s.True(p.LastSeen.Equal(s.now))

	s.mock.ExpectGet("presence:ghost").RedisNil()
	p, err = s.store.GetPresence(s.ctx, "ghost")
	s.NoError(err)
	s.Nil(p)
}

func (s *PresenceStoreTestSuite) TestTypingLifecycle() {
	ttl := 5 * time.Second
	s.mock.ExpectZAdd("typing:alex", redis.Z{Score: float64(s.now.Add(ttl).UnixMilli()), Member: "crew_c1"}).SetVal(1)
	s.mock.ExpectPExpire("typing:alex", ttl).SetVal(true)
	s.NoError(s.store.SetTyping(s.ctx, "alex", "crew_c1", ttl))

	now := strconv.FormatInt(s.now.UnixMilli(), 10)
	s.mock.ExpectZRemRangeByScore("typing:alex", "-inf", now).SetVal(0)
	s.mock.ExpectZRangeByScore("typing:alex", &redis.ZRangeBy{Min: "(" + now, Max: "+inf"}).SetVal([]string{"dm_alex_bea", "crew_c1"})
	convs, err := s.store.TypingIn(s.ctx, "alex")
	s.Require().NoError(err)
	s.Equal([]string{"crew_c1", "dm_alex_bea"}, convs)

	s.mock.ExpectZRem("typing:alex", "crew_c1").SetVal(1)
	s.NoError(s.store.ClearTyping(s.ctx, "alex", "crew_c1"))
}

func (s *PresenceStoreTestSuite) TestDeletePresenceDropsBothKeys() {
	s.mock.ExpectDel("presence:alex", "typing:alex").SetVal(2)
	s.NoError(s.store.DeletePresence(s.ctx, "alex"))
}

func (s *PresenceStoreTestSuite) TestTransportErrorsAreRetryable() {
	s.mock.ExpectGet("presence:alex").SetErr(errors.New("dial tcp: connection refused"))
	_, err := s.store.GetPresence(s.ctx, "alex")
	s.ErrorIs(err, types.ErrNetworkUnavailable)
	s.True(types.Retryable(err))
}

func TestPresenceStoreTestSuite(t *testing.T) {
	suite.Run(t, new(PresenceStoreTestSuite))
}
