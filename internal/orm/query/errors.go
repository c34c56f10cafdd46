package query

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fennec-api/fennec/internal/orm/entity"
)

var (
	// ErrUnknownScope indicates an invocation of a scope name the entity
	// type never registered.
	ErrUnknownScope = errors.New("unknown scope")

	// ErrUnsupportedFilterOp indicates a filter expression with an
	// unrecognized operation prefix.
	ErrUnsupportedFilterOp = errors.New("unsupported filter operation")

	// ErrUnsupportedAggregate indicates an aggregate function outside
	// count|sum|avg|min|max.
	ErrUnsupportedAggregate = errors.New("unsupported aggregate function")
)

// ResponseError is the typed failure Resolve hands to transport layers: an
// HTTP-style status plus a presentable message, wrapping the underlying
// cause.
type ResponseError struct {
	Status  int
	Message string
	Err     error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// WrapResponseError maps persistence failures onto transport semantics:
// missing rows become 404, everything else 500.
func WrapResponseError(err error) *ResponseError {
	if errors.Is(err, entity.ErrNotFound) {
		return &ResponseError{Status: http.StatusNotFound, Message: "data not found", Err: err}
	}
	return &ResponseError{Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}
