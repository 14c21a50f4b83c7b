// Package bind decodes and validates an HTTP request body into a struct.
package bind

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/validate"
)

// ErrEmptyBody is returned when a JSON body is required but missing.
var ErrEmptyBody = errors.New("request body is empty")

// JSON decodes r.Body into dest and validates it. The body is capped at
// MAX_BODY_BYTES. Validation failures come back as errs with a nil err;
// malformed or oversized bodies come back as err.
func JSON(r *http.Request, dest interface{}) (errs map[string]string, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, config.MaxBodyBytes())

	dec := json.NewDecoder(r.Body)
	if err = dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrEmptyBody
		case errors.As(err, &maxErr):
			return nil, fmt.Errorf("request body too large (max %d bytes)", maxErr.Limit)
		case errors.As(err, &syntaxErr):
			return nil, fmt.Errorf("invalid JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return map[string]string{typeErr.Field: fmt.Sprintf("The %s must be a %s.", typeErr.Field, typeErr.Type.String())}, nil
		default:
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	errs = validate.Struct(dest)
	if validate.HasErrors(errs) {
		return errs, nil
	}
	return nil, nil
}

// Query validates dest after the caller has populated it from the query string.
func Query(dest interface{}) map[string]string {
	errs := validate.Struct(dest)
	if validate.HasErrors(errs) {
		return errs
	}
	return nil
}

// IntParam parses a decimal query/path value, returning def when s is empty
// or malformed.
func IntParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
