package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("IsMatchesByCode", func(t *testing.T) {
		err := fmt.Errorf("settle: %w", Errorf(CodeInsufficientBalance, "balance 10 is below 30"))
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
		assert.False(t, errors.Is(err, ErrAlreadyPurchased))
	})

	t.Run("UnwrapKeepsCause", func(t *testing.T) {
		cause := errors.New("deadline exceeded")
		err := WrapError(cause, CodeLedgerTransaction, "ledger transaction failed")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "deadline exceeded")
	})

	t.Run("CodeAndMessage", func(t *testing.T) {
		assert.Equal(t, CodeNotFound, GetErrorCode(fmt.Errorf("wrapped: %w", ErrNotFound)))
		assert.Equal(t, CodeInternalError, GetErrorCode(errors.New("plain")))
		assert.Equal(t, "plain", GetErrorMessage(errors.New("plain")))
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ResponseCode
		status int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyPurchased, http.StatusConflict},
		{CodeInsufficientBalance, http.StatusPaymentRequired},
		{CodeTargetUnavailable, http.StatusUnprocessableEntity},
		{CodeDelivery, http.StatusServiceUnavailable},
		{CodeLedgerTransaction, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.code.HTTPStatus(), "code %d", tt.code)
	}
}

func TestErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("AppError", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		ErrorResponse(c, ErrAlreadyPurchased, gin.H{"transaction_id": "42"})

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeAlreadyPurchased, resp.Code)
		assert.Equal(t, "already purchased", resp.Message)
	})

	t.Run("UnknownErrorIsMasked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		ErrorResponse(c, errors.New("dial tcp 10.0.0.1:3306: refused"), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "10.0.0.1")
	})
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		input     string
		expected  uint64
		wantError bool
	}{
		{"123", 123, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		result, err := ValidateID(tt.input)
		if tt.wantError {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		TargetID   uint64 `json:"target_id" binding:"required"`
		TargetType string `json:"target_type" binding:"required,oneof=video gallery"`
		Quantity   int    `json:"quantity" binding:"omitempty,min=1"`
	}

	err := ValidateStruct(&request{TargetType: "book", Quantity: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParam))
	assert.Contains(t, err.Error(), "target_id is required")
	assert.Contains(t, err.Error(), "target_type must be one of: video, gallery")
	assert.Contains(t, err.Error(), "quantity must be at least 1")

	assert.NoError(t, ValidateStruct(&request{TargetID: 1, TargetType: "video"}))
}
