package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkedErrorsMatchTheirKind(t *testing.T) {
	err := NewError("country DEU already claimed").
		WithHint("country already claimed by another rule").
		Mark(ErrOverlapConflict)

	assert.True(t, IsOverlapConflict(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, ErrCodeOverlapConflict, Code(err))
	assert.Equal(t, http.StatusConflict, HTTPStatusFromErr(err))
	assert.Equal(t, "country already claimed by another rule", DisplayMessage(err))
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	base := NewError("tax not found").Mark(ErrNotFound)
	wrapped := fmt.Errorf("load tax: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(wrapped))
	assert.Equal(t, ErrNotFound.Message, DisplayMessage(wrapped))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		kind   error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrOverlapConflict, http.StatusConflict},
		{ErrPermissionDenied, http.StatusUnauthorized},
		{ErrTenantNotFound, http.StatusNotFound},
		{ErrUpstreamUnavailable, http.StatusBadGateway},
		{ErrDatabase, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := NewError("boom").Mark(tc.kind)
		assert.Equal(t, tc.status, HTTPStatusFromErr(err), tc.kind.Error())
	}
}

func TestUnmarkedErrorIsSystem(t *testing.T) {
	err := fmt.Errorf("plain")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeSystemError, Code(err))
	assert.Equal(t, ErrSystem.Message, DisplayMessage(err))
}

func TestTenantNotFoundIsNotGenericNotFound(t *testing.T) {
	err := NewError("company unknown").Mark(ErrTenantNotFound)
	assert.True(t, IsTenantNotFound(err))
	assert.False(t, IsNotFound(err))
}

func TestReportableDetails(t *testing.T) {
	err := NewError("country already claimed").
		WithReportableDetails(map[string]any{"countries": []string{"DEU"}, "b2c": true}).
		Mark(ErrOverlapConflict)

	details := ReportableDetails(fmt.Errorf("create rule: %w", err))
	assert.Equal(t, true, details["b2c"])
	assert.Equal(t, []any{"DEU"}, details["countries"])

	assert.Empty(t, ReportableDetails(NewError("plain").Mark(ErrValidation)))
}
