package handler

import (
	"errors"
	"net/http"

	"reseller-ledger/internal/adapter/http/middleware"
	"reseller-ledger/pkg/apperror"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// currentSeller writes a 401 and returns false when the request is unauthenticated.
func currentSeller(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.SellerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return id, ok
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// bindError maps a binding failure to a response error.
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ErrPayloadTooLarge()
	}
	appErr := apperror.Validation(err.Error())
	appErr.Err = err
	return appErr
}
