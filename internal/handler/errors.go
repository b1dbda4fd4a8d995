package handler

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/stock"
	"github.com/xenking/cupcake-checkout/pkg/httpmiddleware"
)

func invalidf(format string, args ...any) error {
	return apperr.Validationf(format, args...)
}

var statusByCode = map[string]int{
	"VALIDATION_ERROR": http.StatusBadRequest,
	"UNAUTHORIZED":     http.StatusUnauthorized,
	"NOT_FOUND":        http.StatusNotFound,
	"CONFLICT":         http.StatusConflict,
}

// fail writes err as an error response. Unclassified errors are logged and
// hidden behind a generic message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, http.StatusInternalServerError, code, "Internal server error")
		return
	}
	httpmiddleware.WriteError(w, status, code, message(err))
}

// message extracts the user-facing text of a classified error, dropping any
// wrapping context added on the way up.
func message(err error) string {
	var insufficient *stock.InsufficientError
	if errors.As(err, &insufficient) {
		return insufficient.Error()
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// describe turns the first validator failure into a sentence.
func describe(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "Invalid request"
	}
	fe := fields[0]
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", name, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", name, bound, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}
