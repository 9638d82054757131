// internal/handlers/helpers.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// StatusFor maps a rejection code to the HTTP status returned to clients.
func StatusFor(code services.ErrorCode) int {
	switch code {
	case services.CodeInvalidAmount, services.CodeInvalidPercentage,
		services.CodeArrayLengthMismatch, services.CodeInvalidBatch:
		return http.StatusBadRequest
	case services.CodeUnauthorized:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeAlreadyTerminal, services.CodeAlreadyExists,
		services.CodeInvalidState, services.CodeInsufficientEscrow:
		return http.StatusConflict
	case services.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.CodeProofExpired, services.CodeVerificationFailed, services.CodeUnsupportedCircuit:
		return http.StatusUnprocessableEntity
	case services.CodePaused:
		return http.StatusServiceUnavailable
	case services.CodeTransferFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as an API error. Typed rejections keep their code;
// anything else is logged and reported as an internal error.
func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, nil)
}

func respondErrorWith(c *gin.Context, err error, data interface{}) {
	lang := utils.GetLangFromContext(c)

	if details := utils.GetValidationErrors(err); len(details) > 0 {
		utils.ValidationErrorResponse(c, details)
		return
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		details := gin.H{"reason": svcErr.Message}
		if svcErr.Entity != "" {
			details["entity"] = svcErr.Entity
		}
		if svcErr.EntityID != "" {
			details["entity_id"] = svcErr.EntityID
		}
		if data != nil {
			details["result"] = data
		}
		message := i18n.T(lang, i18n.KeyErrorPrefix+string(svcErr.Code))
		utils.ErrorResponse(c, StatusFor(svcErr.Code), string(svcErr.Code), message, details)
		return
	}

	logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
}

func currentIdentity(c *gin.Context) (string, bool) {
	identity, ok := utils.GetIdentityFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return identity, ok
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}
