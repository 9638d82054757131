// internal/handlers/helpers_test.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/services"
)

var allCodes = []services.ErrorCode{
	services.CodeInvalidAmount,
	services.CodeInvalidPercentage,
	services.CodeUnauthorized,
	services.CodeAlreadyTerminal,
	services.CodeInsufficientEscrow,
	services.CodeProofExpired,
	services.CodeUnsupportedCircuit,
	services.CodePayloadTooLarge,
	services.CodeVerificationFailed,
	services.CodeArrayLengthMismatch,
	services.CodeNotFound,
	services.CodeInvalidState,
	services.CodeInvalidBatch,
	services.CodeAlreadyExists,
	services.CodePaused,
	services.CodeTransferFailed,
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(services.CodeInvalidAmount))
	assert.Equal(t, http.StatusForbidden, StatusFor(services.CodeUnauthorized))
	assert.Equal(t, http.StatusNotFound, StatusFor(services.CodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(services.CodeAlreadyTerminal))
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(services.CodePayloadTooLarge))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(services.CodeProofExpired))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(services.CodePaused))
	assert.Equal(t, http.StatusBadGateway, StatusFor(services.CodeTransferFailed))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("SOMETHING_ELSE"))

	for _, code := range allCodes {
		assert.NotEqual(t, http.StatusInternalServerError, StatusFor(code), code)
	}
}

func TestEveryCodeIsTranslated(t *testing.T) {
	require.NoError(t, i18n.Initialize("en"))

	for _, lang := range []string{"en", "zh_TW"} {
		for _, code := range allCodes {
			assert.True(t, i18n.Has(lang, i18n.KeyErrorPrefix+string(code)), "%s %s", lang, code)
		}
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize("en"))

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"typed", fmt.Errorf("wrapped: %w", services.ErrAlreadyTerminal), http.StatusConflict, "ALREADY_TERMINAL"},
		{"untyped", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
