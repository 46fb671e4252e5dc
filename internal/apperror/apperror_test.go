package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedError(t *testing.T) {
	err := fmt.Errorf("respond: %w", Conflict("offer is no longer pending"))

	assert.Equal(t, CodeConflict, CodeOf(err))
	assert.True(t, Is(err, CodeConflict))
	assert.Equal(t, "offer is no longer pending", MessageOf(err))
}

func TestInternalMessageIsHidden(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "load order")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "Internal server error", MessageOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:           http.StatusNotFound,
		CodeForbidden:          http.StatusForbidden,
		CodeUnauthenticated:    http.StatusUnauthorized,
		CodeConflict:           http.StatusConflict,
		CodeInvalidArgument:    http.StatusBadRequest,
		CodeValidationFailed:   http.StatusBadRequest,
		CodePreconditionFailed: http.StatusPreconditionFailed,
		CodeGatewayError:       http.StatusBadGateway,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), code)
	}
}
