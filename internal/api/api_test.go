package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gymcore/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.NotFoundf("x"), http.StatusNotFound},
		{apperr.InvalidStatef("x"), http.StatusConflict},
		{apperr.Conflictf("x"), http.StatusConflict},
		{apperr.Validationf("x"), http.StatusBadRequest},
		{apperr.AccessDeniedf("x"), http.StatusForbidden},
		{apperr.Verificationf("x"), http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("domain error keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		WriteError(c, apperr.Conflictf("trainer is busy"))

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "trainer is busy", resp.Error)
	})

	t.Run("infrastructure error is hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)

		WriteError(c, errors.New("pq: password authentication failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

type freezeBody struct {
	Days int `json:"days" binding:"required,gt=0"`
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"days": 7}`))
		c.Request.Header.Set("Content-Type", "application/json")

		var body freezeBody
		assert.True(t, BindJSON(c, &body))
		assert.Equal(t, 7, body.Days)
	})

	t.Run("fails validation", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"days": 0}`))
		c.Request.Header.Set("Content-Type", "application/json")

		var body freezeBody
		assert.False(t, BindJSON(c, &body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation failed")
	})

	t.Run("malformed", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"days":`))
		c.Request.Header.Set("Content-Type", "application/json")

		var body freezeBody
		assert.False(t, BindJSON(c, &body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type memberBody struct {
	Email string `validate:"required,email"`
}

func TestValidateStruct(t *testing.T) {
	errs := ValidateStruct(memberBody{Email: "nope"})
	require.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Tag)

	assert.Empty(t, ValidateStruct(memberBody{Email: "a@b.co"}))
}
