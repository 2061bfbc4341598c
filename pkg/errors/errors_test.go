package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/autonomy/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "streak",
			ID:       "42",
		}
		assert.Equal(t, "streak with ID 42 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("session", "abc")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("gap_threshold", 0.0, "must be greater than zero")
		assert.Equal(t, "validation failed for field gap_threshold: must be greater than zero", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid configuration"}
		assert.Equal(t, "validation failed: invalid configuration", err.Error())
	})

	t.Run("wrap nil", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapValidation("field", nil))
	})
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("unable to open database file")
	err := pkgerrors.NewUnavailableError("/tmp/missing.db", cause)

	assert.True(t, pkgerrors.IsUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/tmp/missing.db")

	wrapped := fmt.Errorf("backfill: %w", err)
	assert.True(t, pkgerrors.IsUnavailable(wrapped))
}

func TestResourceError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := pkgerrors.WrapResource("replace", "streaks", "", cause)
	require.Error(t, err)
	assert.Equal(t, "failed to replace streaks: disk I/O error", err.Error())
	assert.ErrorIs(t, err, cause)

	var re *pkgerrors.ResourceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "streaks", re.Resource)

	assert.NoError(t, pkgerrors.WrapResource("scan", "events", "", nil))
}

func TestIOAndConfigErrors(t *testing.T) {
	cause := errors.New("permission denied")

	ioErr := pkgerrors.WrapIO("open", "/var/db", cause)
	assert.Equal(t, "IO error during open of /var/db: permission denied", ioErr.Error())
	assert.ErrorIs(t, ioErr, cause)

	cfgErr := pkgerrors.NewConfigError("poller", "interval must be positive", nil)
	assert.Equal(t, "configuration error in poller: interval must be positive", cfgErr.Error())
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("query", "3s", "busy")
	assert.Equal(t, "operation query timed out after 3s: busy", err.Error())
	assert.True(t, pkgerrors.IsTimeout(err))
	assert.False(t, pkgerrors.IsCanceled(err))
}

func TestSentinels(t *testing.T) {
	wrapped := fmt.Errorf("job: %w", pkgerrors.ErrAlreadyRunning)
	assert.True(t, pkgerrors.IsAlreadyRunning(wrapped))
	assert.False(t, pkgerrors.IsAlreadyRunning(pkgerrors.ErrClosed))
}
