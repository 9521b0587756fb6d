package errorx

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
	"go.uber.org/zap"
)

var errGone = errors.New("gone")

func TestConvertToAPIError(t *testing.T) {
	h := NewErrorHandler(zap.NewNop()).Map(errGone, ErrNotFound)

	assert.Same(t, ErrForbidden, h.ConvertToAPIError(fmt.Errorf("wrapped: %w", ErrForbidden)))
	assert.Same(t, ErrNotFound, h.ConvertToAPIError(fmt.Errorf("lookup: %w", errGone)))
	assert.Same(t, ErrInternalServer, h.ConvertToAPIError(errors.New("boom")))
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewErrorHandler(zap.NewNop())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/console/admin/connections", nil)
	h.HandleError(c, ErrUnauthorized)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
	var body struct {
		Error APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "E2001", body.Error.Code)
	assert.NotEmpty(t, body.Error.TraceID)
	assert.Empty(t, ErrUnauthorized.TraceID)
}

func TestWithDetail(t *testing.T) {
	e := ErrNotFound.WithDetail("token", "abc")
	assert.Equal(t, "abc", e.Details["token"])
	assert.Nil(t, ErrNotFound.Details)
	assert.Contains(t, e.Error(), "E4001")
	assert.Contains(t, e.JSON(), `"token":"abc"`)
}
