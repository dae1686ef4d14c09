package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// BaseError — единый формат ошибки API.
// Code — машинный код в snake_case, Message — краткое описание.
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError — ошибка конкретного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// ShortfallResponse 400: перечислены все позиции, которых не хватает.
type ShortfallResponse struct {
	BaseError
	Shortfalls []domain.Shortfall `json:"shortfalls"`
}

// ConflictResponse 409: условное списание не прошло на позиции Item.
type ConflictResponse struct {
	BaseError
	Item *conflictItem `json:"item,omitempty"`
}

type conflictItem struct {
	ProductID    string `json:"productId"`
	ItemName     string `json:"itemName"`
	SelectedSize string `json:"selectedSize,omitempty"`
	Requested    int    `json:"requestedQuantity"`
	Available    int    `json:"availableStock"`
}

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}

func NewUnauthorizedError(msg string) BaseError {
	return BaseError{Code: "unauthorized", Message: msg}
}

func NewForbiddenError(msg string) BaseError {
	return BaseError{Code: "forbidden", Message: msg}
}

func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: "not_found", Message: msg}
}

func NewConflictError(msg string) BaseError {
	return BaseError{Code: "conflict", Message: msg}
}

func NewInternalError(details string) BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error", Details: details}
}

// writeError переводит доменную ошибку в HTTP-ответ.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	var (
		shortfall *domain.ShortfallError
		conflict  *domain.ConflictError
	)
	switch {
	case errors.As(err, &shortfall):
		c.JSON(http.StatusBadRequest, ShortfallResponse{
			BaseError:  BaseError{Code: "insufficient_stock", Message: "some items are not available in the requested quantity"},
			Shortfalls: shortfall.Shortfalls,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ConflictResponse{
			BaseError: BaseError{Code: "stock_conflict", Message: conflict.Error()},
			Item: &conflictItem{
				ProductID:    conflict.ProductID,
				ItemName:     conflict.ItemName,
				SelectedSize: conflict.SelectedSize,
				Requested:    conflict.Requested,
				Available:    conflict.Available,
			},
		})
	case domain.IsVersionConflict(err):
		c.JSON(http.StatusConflict, NewConflictError("order was modified concurrently, retry the request"))
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, NewNotFoundError(err.Error()))
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, NewUnauthorizedError(err.Error()))
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, NewForbiddenError("role does not allow this operation"))
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, BaseError{Code: "invalid_transition", Message: err.Error()})
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, NewValidationError(err.Error(), nil))
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, NewInternalError(""))
	}
}
