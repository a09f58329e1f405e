package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChain(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, cause, "failed to append movement")
	wrapped := fmt.Errorf("checkout: %w", err)

	typed := As(wrapped)
	require.NotNil(t, typed)
	assert.Equal(t, CodeInternal, typed.Code())
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, Is(wrapped, CodeInternal))
	assert.False(t, Is(wrapped, CodeNotFound))
	assert.Contains(t, err.Error(), "disk full")
}

func TestNotFoundCarriesKey(t *testing.T) {
	err := NotFound("product", "Apples")

	assert.Equal(t, CodeNotFound, err.Code())
	assert.Equal(t, "Apples", err.Details()["product"])
	assert.Equal(t, "NOT_FOUND: product not found: Apples", err.Error())
}

func TestCodeOfUntyped(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeConflict, CodeOf(Conflict("duplicate")))
	assert.Nil(t, As(nil))
}

func TestMetadataFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, MetadataFor(CodeInvalidMovement).HTTPStatus)
	assert.Equal(t, http.StatusConflict, MetadataFor(CodeInsufficientStock).HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, MetadataFor(CodeStateConflict).HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, MetadataFor(Code("UNKNOWN")).HTTPStatus)
}

func TestNilErrorIsSafe(t *testing.T) {
	var err *Error
	assert.Equal(t, CodeInternal, err.Code())
	assert.Empty(t, err.Message())
	assert.Nil(t, err.With("k", "v"))
}
