package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("po %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.Invalid("quantity", "must be positive"), http.StatusBadRequest},
		{&shared.TransitionError{Document: "transfer", Action: "ship", Status: "draft"}, http.StatusConflict},
		{shared.ErrConcurrentModification, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{&shared.StockError{Kind: shared.ErrNegativeStock}, http.StatusUnprocessableEntity},
		{&shared.StockError{Kind: shared.ErrInsufficientStock}, http.StatusUnprocessableEntity},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{&shared.PersistenceError{Op: "x", Err: errors.New("conn reset")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, title := StatusFor(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.NotEmpty(t, title)
	}
}

func TestRespondErrorProblemFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.TransitionError{Document: "purchase order", Action: "receive", Status: "draft"})
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, "draft", p.CurrentStatus)

	rr = httptest.NewRecorder()
	RespondError(rr, shared.Invalid("items[0].quantity", "must be positive"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, "items[0].quantity", p.Field)

	rr = httptest.NewRecorder()
	RespondError(rr, &shared.PersistenceError{Op: "insert", Err: errors.New("password=secret")})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "secret")
}

type sampleItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type sampleRequest struct {
	Notes string       `json:"notes" validate:"max=5"`
	Items []sampleItem `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeAndValidate(t *testing.T) {
	decode := func(body string) error {
		var req sampleRequest
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return DecodeAndValidate(r, &req)
	}
	require.NoError(t, decode(`{"items":[{"product_id":1,"quantity":2}]}`))

	var verr *shared.ValidationError
	err := decode(`{"items":[{"product_id":1,"quantity":0}]}`)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "items[0].quantity", verr.Field)

	err = decode(`{"items":[],"notes":"x"}`)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "items", verr.Field)

	err = decode(`{"items":[{"product_id":1,"quantity":2}],"unknown":1}`)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "body", verr.Field)
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?store_id=7&page=x&from=2026-02-01&to=2026-02-28&bad=2026-13-01", nil)
	id, err := QueryInt64(r, "store_id")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	_, err = QueryInt(r, "page")
	require.ErrorIs(t, err, shared.ErrValidation)
	missing, err := QueryInt64(r, "missing")
	require.NoError(t, err)
	require.Zero(t, missing)

	from, err := QueryDate(r, "from", false)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), from)
	to, err := QueryDate(r, "to", true)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 28, 23, 59, 59, 999999999, time.UTC), to)
	_, err = QueryDate(r, "bad", false)
	require.ErrorIs(t, err, shared.ErrValidation)

	r.Header.Set("Idempotency-Key", "  abc ")
	require.Equal(t, "abc", IdempotencyKey(r))
}
