package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappedErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("invalid_quantity")
	err := Validation(cause)

	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestWrapKeepsExistingKind(t *testing.T) {
	err := Persistence(context.DeadlineExceeded)
	again := Persistence(err)

	assert.Same(t, err, again)
	assert.True(t, errors.Is(again, context.DeadlineExceeded))
}

func TestKindOfThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("generate billing: %w", NotAuthenticated(errors.New("missing_owner")))

	assert.Equal(t, KindNotAuthenticated, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Nil(t, Validation(nil))
}
