package response

import (
	"errors"
	"net/http"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

type ErrorMapping struct {
	HTTPStatus int
	Status     Status
	Message    string
}

var classMappings = map[domainErrors.Class]ErrorMapping{
	domainErrors.ClassAuthorization: {
		HTTPStatus: http.StatusForbidden,
		Status:     StatusForbidden,
		Message:    "Caller is not allowed to perform this operation",
	},
	domainErrors.ClassStateConflict: {
		HTTPStatus: http.StatusConflict,
		Status:     StatusConflict,
		Message:    "Operation conflicts with the sale state",
	},
	domainErrors.ClassResourceExhaustion: {
		HTTPStatus: http.StatusConflict,
		Status:     StatusConflict,
		Message:    "Requested resource is exhausted",
	},
	domainErrors.ClassFundsMismatch: {
		HTTPStatus: http.StatusPaymentRequired,
		Status:     StatusPaymentRequired,
		Message:    "Attached funds do not match the operation",
	},
	domainErrors.ClassInvalidInput: {
		HTTPStatus: http.StatusBadRequest,
		Status:     StatusValidationError,
		Message:    "Invalid request parameters",
	},
}

// Some errors deserve a more specific answer than their class gives them.
var errorMappings = map[error]ErrorMapping{
	domainErrors.ErrNotInitialized: {
		HTTPStatus: http.StatusServiceUnavailable,
		Status:     StatusServiceUnavailable,
		Message:    "Crowdfund is not initialized",
	},
	domainErrors.ErrTokenNotAvailable: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Token not available",
	},
	domainErrors.ErrTransactionFailed: {
		HTTPStatus: http.StatusServiceUnavailable,
		Status:     StatusServiceUnavailable,
		Message:    "Transaction failed, retry the request",
	},
}

func MapDomainError(err error) (int, *ErrorResponse) {
	for domainErr, mapping := range errorMappings {
		if errors.Is(err, domainErr) {
			return mapping.HTTPStatus, Error(mapping.Status, mapping.Message, err.Error(), codeOf(err))
		}
	}

	class := domainErrors.ClassOf(err)
	if mapping, ok := classMappings[class]; ok {
		return mapping.HTTPStatus, Error(mapping.Status, mapping.Message, err.Error(), codeOf(err))
	}

	return http.StatusInternalServerError, Error(StatusInternalError, "Internal server error", err.Error())
}

func codeOf(err error) string {
	return string(domainErrors.ClassOf(err))
}

func WriteDomainError(w http.ResponseWriter, err error) {
	statusCode, errorResponse := MapDomainError(err)
	WriteJSON(w, statusCode, errorResponse)
}
