package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies; every payload of this API is tiny.
const maxBodyBytes = 64 << 10

// Validate is the shared validator instance.
var Validate = validator.New(validator.WithRequiredStructEnabled())

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes the request body into v, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

// ValidateRequest validates v with its own Validate method when it has one,
// and with the struct tags otherwise.
func ValidateRequest(v interface{}) error {
	if validatable, ok := v.(interface{ Validate() error }); ok {
		return validatable.Validate()
	}
	return Validate.Struct(v)
}
