package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("load lesson: %w", Clone(ErrNotFound, "lesson not found"))

	got := FromError(wrapped)
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, "lesson not found", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestIsMatchesClonedSentinel(t *testing.T) {
	err := Clone(ErrTransitionNotAllowed, "lesson must be scheduled to start")
	assert.True(t, errors.Is(err, ErrTransitionNotAllowed))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWithDetailsCopiesMap(t *testing.T) {
	details := map[string]string{"end_time": "must be after start_time"}
	err := WithDetails(ErrValidation, details)
	details["end_time"] = "changed"

	assert.Equal(t, "must be after start_time", err.Details["end_time"])
	assert.Nil(t, ErrValidation.Details)
}
