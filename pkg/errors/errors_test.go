package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailReturnsCopy(t *testing.T) {
	detailed := ErrInvalidParam.WithDetail("prompt is required")

	assert.Equal(t, CodeInvalidParam, detailed.Code)
	assert.Equal(t, "prompt is required", detailed.Detail)

	// 预定义错误不被污染
	assert.Empty(t, ErrInvalidParam.Detail)
}

func TestWithErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	wrapped := ErrDatabaseError.WithError(cause)

	assert.True(t, stderrors.Is(wrapped, cause))
	assert.Equal(t, CodeDatabaseError, wrapped.Code)
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode(ErrJobNotFound, CodeJobNotFound))
	assert.False(t, IsCode(ErrJobNotFound, CodeScriptNotFound))
	assert.False(t, IsCode(fmt.Errorf("plain"), CodeJobNotFound))
	assert.False(t, IsCode(nil, CodeJobNotFound))
}

func TestAsAppErrorWrapsUnknown(t *testing.T) {
	plain := fmt.Errorf("something broke")

	appErr := AsAppError(plain)
	require.NotNil(t, appErr)
	assert.Equal(t, CodeUnknown, appErr.Code)

	assert.False(t, IsAppError(plain))
	assert.True(t, IsAppError(ErrConflict))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrInvalidParam.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthorized.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrScriptNotFound.HTTPStatus)
	assert.Equal(t, http.StatusConflict, ErrVersionConflict.HTTPStatus)
	assert.Equal(t, http.StatusPaymentRequired, ErrInsufficientTokens.HTTPStatus)
}
