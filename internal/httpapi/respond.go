// Package httpapi holds the request decoding and response writing shared by
// the storefront handlers. It is the only place an apperr.Code becomes an
// HTTP status.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/storefront/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// DecodeJSON decodes the request body into dest and validates its struct
// tags. Failures are validation errors listing the offending fields.
func DecodeJSON(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body")
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *apperr.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = validationMessage(fieldErr)
	}
	return apperr.New(apperr.CodeValidation, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

// QueryInt64 parses a required positive integer query parameter.
func QueryInt64(r *http.Request, key string) (int64, error) {
	return parseID(r.URL.Query().Get(key), key)
}

// PathInt64 parses a required positive integer path value.
func PathInt64(r *http.Request, key string) (int64, error) {
	return parseID(r.PathValue(key), key)
}

func parseID(raw, key string) (int64, error) {
	if raw == "" {
		return 0, apperr.Validation("missing " + key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + key)
	}
	return id, nil
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

// WriteError maps err to a status and a structured body. Untagged errors are
// logged and reported as internal errors without their text.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	typed := apperr.As(err)
	if typed == nil || typed.Code() == apperr.CodeInternal {
		logger.Error("request failed", "error", err)
		meta := apperr.MetadataFor(apperr.CodeInternal)
		WriteJSON(w, logger, meta.HTTPStatus, map[string]errorBody{
			"error": {Code: apperr.CodeInternal, Message: meta.PublicMessage},
		})
		return
	}

	meta := apperr.MetadataFor(typed.Code())
	WriteJSON(w, logger, meta.HTTPStatus, map[string]errorBody{
		"error": {Code: typed.Code(), Message: typed.Message(), Details: typed.Details()},
	})
}

// Message is the confirmation body returned by mutating endpoints.
type Message struct {
	Message string `json:"message"`
}
