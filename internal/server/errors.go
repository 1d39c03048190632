package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/schoolbilling/internal/authorization"
	customchargedomain "github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	featuredomain "github.com/smallbiznis/schoolbilling/internal/feature/domain"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
	paymentproviderdomain "github.com/smallbiznis/schoolbilling/internal/paymentprovider/domain"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	subscriptiondomain "github.com/smallbiznis/schoolbilling/internal/subscription/domain"
	"github.com/smallbiznis/schoolbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	// Processor failures surface only the safe message.
	if perr, ok := processor.AsError(err); ok {
		message := strings.TrimSpace(perr.Message)
		if message == "" {
			message = "payment processor error"
		}
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_error",
			Message: message,
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrNotApplied),
		errors.Is(err, paymentdomain.ErrWebhookRetry):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "payment recorded but not applied, retry later",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, processor.ErrNotConfigured),
		errors.Is(err, subscriptiondomain.ErrPriceNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	processor.ErrInvalidSignature,
	authorization.ErrInvalidActor,
	authorization.ErrInvalidSchool,
	schooldomain.ErrInvalidName,
	schooldomain.ErrInvalidBillingDay,
	schooldomain.ErrInvalidOwner,
	schooldomain.ErrInvalidStatus,
	schooldomain.ErrInvalidReference,
	featuredomain.ErrInvalidCode,
	featuredomain.ErrInvalidName,
	featuredomain.ErrInvalidPrice,
	entitlementdomain.ErrInvalidSchool,
	entitlementdomain.ErrInvalidFeature,
	entitlementdomain.ErrInvalidPricingModel,
	entitlementdomain.ErrInvalidTrialDays,
	entitlementdomain.ErrInvalidFee,
	entitlementdomain.ErrInvalidStatus,
	paymentdomain.ErrInvalidTarget,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrAmountRequired,
	paymentdomain.ErrInvalidStatus,
	paymentdomain.ErrInvalidPaymentType,
	paymentdomain.ErrInvalidEvent,
	customchargedomain.ErrInvalidAmount,
	customchargedomain.ErrInvalidDescription,
	customchargedomain.ErrInvalidFamily,
	subscriptiondomain.ErrInvalidPlan,
	subscriptiondomain.ErrInvalidCardToken,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var conflictErrors = []error{
	entitlementdomain.ErrNotEnabled,
	customchargedomain.ErrAlreadyPaid,
	customchargedomain.ErrNoConnectedAccount,
	subscriptiondomain.ErrAlreadySubscribed,
	subscriptiondomain.ErrNoCustomer,
	subscriptiondomain.ErrNoPaymentMethod,
	subscriptiondomain.ErrFeatureNotPayable,
	paymentproviderdomain.ErrNotConnected,
	schooldomain.ErrNoOwnerContact,
}

func isConflictError(err error) bool {
	return errors.Is(err, ErrConflict) || conflictMessage(err) != "conflict"
}

// conflictMessage exposes the domain code so clients can tell conflicts apart.
func conflictMessage(err error) string {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, schooldomain.ErrNotFound),
		errors.Is(err, featuredomain.ErrNotFound),
		errors.Is(err, entitlementdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, customchargedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "payment_amount_required":
		return "amount is required"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if perr, ok := processor.AsError(err); ok && perr.Code != "" {
		code = perr.Code
	}
	return payload.Type, code
}
