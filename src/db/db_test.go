package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDbUsesInjectedHandle(t *testing.T) {
	gormDB, mock := NewMockDB(t)
	NewDB(gormDB)
	t.Cleanup(func() { NewDB(nil) })

	assert.Same(t, gormDB, GetDb())
	assert.Equal(t, "postgres", GetDb().Dialector.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDbWithoutDatabaseHost(t *testing.T) {
	NewDB(nil)
	t.Setenv("DATABASE_HOST", "")
	assert.Nil(t, GetDb())
}
