package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	derived := ErrInvalidState.WithDetail("approve(outline) in Idle")

	assert.Empty(t, ErrInvalidState.Detail)
	assert.Equal(t, "approve(outline) in Idle", derived.Detail)
	assert.True(t, stderrors.Is(derived, ErrInvalidState))
	assert.Contains(t, derived.Error(), "approve(outline) in Idle")
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := Wrap(stderrors.New("eof"), CodeStorageError, "write story")
	wrapped := fmt.Errorf("approve section: %w", base)

	assert.Equal(t, CodeStorageError, CodeOf(wrapped))
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))
	assert.Equal(t, CodeSuccess, CodeOf(nil))
	assert.True(t, IsAppError(wrapped))
	assert.Equal(t, http.StatusInternalServerError, AsAppError(wrapped).HTTPStatus)
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrProjectExists.HTTPStatus)
	assert.Equal(t, http.StatusConflict, ErrInvalidState.HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ErrInvalidConfig.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrProjectNotFound.HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, ErrGenerationFailed.HTTPStatus)
}
