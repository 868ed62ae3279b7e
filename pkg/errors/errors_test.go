package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneAndWrapMatchSentinelByCode(t *testing.T) {
	clone := Clone(ErrForbidden, "Teacher profile not found")
	assert.True(t, errors.Is(clone, ErrForbidden))
	assert.Equal(t, "Teacher profile not found", clone.Message)
	assert.Equal(t, "forbidden", ErrForbidden.Message)

	wrapped := Wrap(sql.ErrConnDone, ErrInternal.Code, ErrInternal.Status, "failed to load class")
	assert.True(t, errors.Is(wrapped, ErrInternal))
	assert.True(t, errors.Is(wrapped, sql.ErrConnDone))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))
	assert.Same(t, ErrDuplicateSession, FromError(ErrDuplicateSession))

	generic := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, generic.Code)
	assert.Equal(t, http.StatusInternalServerError, generic.Status)
	assert.Equal(t, "internal server error: boom", generic.Error())
}
