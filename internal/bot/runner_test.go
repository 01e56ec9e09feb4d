// internal/bot/runner_test.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(nil))
	assert.NoError(t, ignoreCanceled(context.Canceled))
	// Shutdown cancellations arrive wrapped by whichever component
	// observed them first.
	assert.NoError(t, ignoreCanceled(fmt.Errorf("subscriber stopped: %w", context.Canceled)))

	boom := errors.New("node unreachable")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
}
