package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersWrapSentinels(t *testing.T) {
	err := NotFound("role %s", "branch_manager")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "branch_manager")

	assert.True(t, errors.Is(Conflict("duplicate"), ErrConflict))
	assert.True(t, errors.Is(PermissionDenied("nope"), ErrPermissionDenied))
	assert.True(t, errors.Is(Validation("bad input"), ErrValidation))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{PermissionDenied("x"), http.StatusForbidden},
		{Validation("x"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("outer: %w", NotFound("inner")), http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}
