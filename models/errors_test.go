package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewError(KindUnsupportedFormat, "bad", nil).Status())
	assert.Equal(t, http.StatusBadRequest, NewError(KindNoFileProvided, "none", nil).Status())
	assert.Equal(t, http.StatusRequestEntityTooLarge, NewError(KindPayloadTooLarge, "big", nil).Status())
	assert.Equal(t, http.StatusInternalServerError, NewError(KindConversionFailed, "exit 1", nil).Status())
	assert.Equal(t, http.StatusInternalServerError, NewError(KindCatalogUnavailable, "io", nil).Status())
}

func TestKindOfThroughWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("stage upload: %w", NewError(KindPayloadTooLarge, "too big", cause))

	assert.Equal(t, KindPayloadTooLarge, KindOf(err))
	assert.True(t, IsKind(err, KindPayloadTooLarge))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "ConversionFailed: converter exited with status 2",
		NewError(KindConversionFailed, "converter exited with status 2", nil).Error())
}
