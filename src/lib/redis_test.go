package lib

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestPingRedis(t *testing.T) {
	rd, mock := redismock.NewClientMock()
	NewRedisClient(rd)
	defer NewRedisClient(nil)

	mock.ExpectPing().SetVal("PONG")
	assert.Nil(t, PingRedis(context.Background()))

	mock.ExpectPing().SetErr(errors.New("dial tcp: connection refused"))
	assert.NotNil(t, PingRedis(context.Background()))
	assert.Nil(t, mock.ExpectationsWereMet())
}
