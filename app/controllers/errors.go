package controllers

import (
	"errors"
	"net/http"

	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
)

// respondError maps a service error to its HTTP status.
func respondError(c *ctx.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.ValidationError(verr.Fields)
	case errors.Is(err, services.ErrNotFound):
		c.NotFound(err.Error())
	case errors.Is(err, services.ErrForbidden):
		c.Forbidden(err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		c.Error(http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrConflict):
		c.Error(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrEmptyCart):
		c.Error(http.StatusUnprocessableEntity, err.Error())
	default:
		c.Logger().Error("request failed", "error", err)
		c.Error(http.StatusInternalServerError, "Internal server error")
	}
}

// id reads a positive integer path parameter, answering 404 when it is not
// one.
func id(c *ctx.Context, key string) (uint, bool) {
	n, ok := c.ParamUint(key)
	if !ok {
		c.NotFound()
	}
	return n, ok
}
