package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rental/backend/internal/domain/billing"
	"github.com/rental/backend/internal/interfaces/http/dto"
)

const (
	// RequestIDKey is the gin context key holding the request ID.
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// GetRequestID prefers the ID assigned by the request ID middleware over the
// raw header.
func GetRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}

// SetupValidator makes binding errors name fields by their json or form key
// and registers the billing_period tag. Safe to call more than once.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(wireName)
	_ = v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		_, _, err := billing.ParsePeriod(fl.Field().String())
		return err == nil
	})
}

func wireName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return ""
}

// ruleMessages maps a validator tag to a message; %s receives the tag param.
var ruleMessages = map[string]string{
	"required":       "is required",
	"uuid":           "must be a UUID",
	"oneof":          "must be one of: %s",
	"gt":             "must be greater than %s",
	"gte":            "must be at least %s",
	"lte":            "must be at most %s",
	"billing_period": "must be a billing period in the form YYYY-MM",
}

func ruleMessage(fe validator.FieldError) string {
	if fe.Tag() == "min" || fe.Tag() == "max" {
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
		}
		return fmt.Sprintf("must be %s %s", bound, fe.Param())
	}
	tmpl, ok := ruleMessages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, fe.Param())
	}
	return tmpl
}

// FormatValidationErrors renders a binding failure. Rule violations become
// per-field details; a body or query the binder could not decode keeps the
// decoder's message.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		msg := "request could not be decoded"
		if err != nil {
			msg = err.Error()
		}
		return dto.NewValidationErrorResponse(msg, requestID, nil)
	}

	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: ruleMessage(fe)})
	}
	return dto.NewValidationErrorResponse("request validation failed", requestID, details)
}

func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}
