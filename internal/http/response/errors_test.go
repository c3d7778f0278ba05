package response

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/diagnosis/photo-challenges/internal/domain"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: challenge", domain.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("%w: already decided", domain.ErrConflict), http.StatusBadRequest, CodeConflict},
		{fmt.Errorf("%w: selected_date is required", domain.ErrValidation), http.StatusBadRequest, CodeInvalidInput},
		{domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{errors.New("connection refused"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		FromError(rec, httptest.NewRequest(http.MethodGet, "/challenge/abc", nil), tt.err)

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.code, body.Code)
	}

	rec := httptest.NewRecorder()
	FromError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: secret detail"))
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestFromErrorLogsInternalFailures(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Default()
	logger.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { logger.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-42")
	req := httptest.NewRequest(http.MethodPut, "/challenge/abc", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	FromError(rec, req, fmt.Errorf("%w: issue token: signing key missing", domain.ErrExternalService))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "signing key missing")
	assert.Contains(t, buf.String(), "signing key missing")
	assert.Contains(t, buf.String(), `"external_service":true`)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)

	buf.Reset()
	FromError(httptest.NewRecorder(), req, fmt.Errorf("%w: challenge", domain.ErrNotFound))
	assert.Empty(t, buf.String())
}
