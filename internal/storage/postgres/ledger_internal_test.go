package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
)

func TestIsDuplicateKeyError(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.True(t, isDuplicateKeyError(dup))
	assert.True(t, isDuplicateKeyError(fmt.Errorf("inserting buck 0: %w", dup)))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "23514"}))
	assert.False(t, isDuplicateKeyError(errors.New("connection reset")))
	assert.False(t, isDuplicateKeyError(nil))
}

func TestNewPool_GivesUpAfterRetries(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "127.0.0.1", Port: 1, User: "bucks", Name: "bucks", SSLMode: "disable",
		MaxConns: 1, MaxConnLifetime: time.Minute,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewPool(ctx, cfg, WithRetry(2, 10*time.Millisecond, zaptest.NewLogger(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
}
