package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetryableErrors(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: deadlockDetected}))
	assert.True(t, retryable(&pgconn.PgError{Code: serialisationFailure}))
	// Wrapping must not hide the code.
	assert.True(t, retryable(errors.Wrap(&pgconn.PgError{Code: deadlockDetected}, "commit tx")))

	assert.False(t, retryable(nil))
	assert.False(t, retryable(&pgconn.PgError{Code: uniqueViolation}))
	assert.False(t, retryable(fmt.Errorf("connection refused")))
}
