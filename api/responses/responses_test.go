package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketsettle-backend/pkg/errors"
	"github.com/angelmondragon/marketsettle-backend/pkg/result"
)

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteSuccessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "world", body.Data["hello"])
	assert.Empty(t, body.Code)
}

func TestWriteResultCarriesInformationalCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResult(rec, http.StatusOK, result.OKWithCode(map[string]string{"id": "p1"}, pkgerrors.CodeAlreadyConfirmed))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, string(pkgerrors.CodeAlreadyConfirmed), body.Code)
}

func TestWriteErrorMapsDomainCode(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive").
		WithDetails(map[string]any{"field": "amount"})
	WriteError(t.Context(), nil, rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, string(pkgerrors.CodeInvalidAmount), body.Code)
	assert.Equal(t, "amount must be positive", body.Error)
	assert.Equal(t, "amount", body.Details["field"])
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(t.Context(), nil, rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	assert.Equal(t, "internal server error", body.Error)
}

func TestWriteReportsEitherOutcome(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(t.Context(), nil, rec, http.StatusCreated, map[string]string{"id": "o1"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	Write[map[string]string](t.Context(), nil, rec, http.StatusCreated, nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeOrderNotFound), decode(t, rec).Code)
}
