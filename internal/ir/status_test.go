package ir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ErrMapsSuccessToNil(t *testing.T) {
	assert.NoError(t, StatusSuccessful.Err())
	assert.Error(t, StatusTimeout.Err())
}

func TestStatus_ErrorsIs(t *testing.T) {
	err := fmt.Errorf("obtain: %w", StatusTimeout)
	assert.True(t, errors.Is(err, StatusTimeout))
	assert.False(t, errors.Is(err, StatusUnsatisfied))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccessful, StatusOf(nil))
	assert.Equal(t, StatusInvalidID, StatusOf(fmt.Errorf("wrap: %w", StatusInvalidID)))
	assert.Equal(t, StatusInternalError, StatusOf(errors.New("plain")))
}

func TestStatus_Names(t *testing.T) {
	for s := StatusSuccessful; s < statusCount; s++ {
		name := s.String()
		require.NotEmpty(t, name, "status %d has no name", s)

		parsed, ok := ParseStatus(name)
		require.True(t, ok, name)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "STATUS_999", Status(999).String())
	assert.False(t, Status(999).Valid())
}
