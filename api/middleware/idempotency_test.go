package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

const (
	borrowPattern     = "/api/v1/books/{bookId}/borrow"
	returnLoanPattern = "/api/v1/loans/{loanId}/return"
	adminBooksPath    = "/api/admin/v1/books"
)

// memStore is an in-memory IdempotencyStore.
type memStore map[string]string

func (m memStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key], _ = value.(string)
	return true, nil
}

func (m memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key], _ = value.(string)
	return nil
}

func (m memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m, key)
	}
	return nil
}

func (m memStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

// routed builds a request as chi would hand it to middleware matched on pattern.
func routed(method, path, pattern, key string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func borrowRequest(key string) *http.Request {
	return routed(http.MethodPost, "/api/v1/books/b1/borrow", borrowPattern, key, nil)
}

func serve(store memStore, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Idempotency(store, nil)(h).ServeHTTP(rec, req)
	return rec
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{http.MethodPost, borrowPattern, lendingIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/books/{bookId}/return", lendingIdempotencyTTL, true},
		{http.MethodPost, returnLoanPattern, lendingIdempotencyTTL, true},
		{http.MethodPost, adminBooksPath, defaultIdempotencyTTL, true},
		{http.MethodPost, adminBooksPath + "/", defaultIdempotencyTTL, true},
		{http.MethodPut, "/api/admin/v1/books/{bookId}", 0, false},
		{http.MethodGet, "/api/v1/books/{bookId}", 0, false},
		{http.MethodPost, "/api/v1/auth/login", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.pattern, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestIdempotencyRequiredKeyMissing(t *testing.T) {
	called := false
	rec := serve(memStore{}, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}, routed(http.MethodPost, adminBooksPath, adminBooksPath, "", strings.NewReader(`{"title":"x"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyOptionalKeyPassesThrough(t *testing.T) {
	store := memStore{}
	calls := 0
	h := func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}
	serve(store, h, borrowRequest(""))
	serve(store, h, borrowRequest(""))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := memStore{}
	calls := 0
	h := func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}

	for attempt := range 2 {
		rec := serve(store, h, borrowRequest("borrow-1"))
		require.Equal(t, http.StatusCreated, rec.Code, "attempt %d", attempt)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	}
	assert.Equal(t, 1, calls)
}

func TestIdempotencyServerErrorsAreRetryable(t *testing.T) {
	store := memStore{}
	calls := 0
	h := func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}
	for range 2 {
		serve(store, h, routed(http.MethodPost, "/api/v1/loans/l1/return", returnLoanPattern, "retry-me", nil))
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store)
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	store := memStore{}
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	serve(store, ok, routed(http.MethodPost, adminBooksPath, adminBooksPath, "xyz", strings.NewReader(`{"title":"a"}`)))
	rec := serve(store, ok, routed(http.MethodPost, adminBooksPath, adminBooksPath, "xyz", strings.NewReader(`{"title":"b"}`)))

	require.Equal(t, http.StatusConflict, rec.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyInFlightDuplicateConflicts(t *testing.T) {
	store := memStore{}
	var dup *httptest.ResponseRecorder
	rec := serve(store, func(w http.ResponseWriter, _ *http.Request) {
		dup = serve(store, func(http.ResponseWriter, *http.Request) {
			t.Error("duplicate reached the handler")
		}, borrowRequest("same"))
		w.WriteHeader(http.StatusCreated)
	}, borrowRequest("same"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, dup)
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestIdempotencyPanicReleasesReservation(t *testing.T) {
	store := memStore{}
	assert.Panics(t, func() {
		serve(store, func(http.ResponseWriter, *http.Request) { panic("boom") },
			routed(http.MethodPost, "/api/v1/loans/l1/return", returnLoanPattern, "k", nil))
	})
	assert.Empty(t, store)
}
