package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/api/middleware"
	pkgAuth "github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v; body=%s", err, resp.Body.String())
	}
	return env
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, resp)
	if env.Error == nil {
		t.Fatalf("expected error envelope; body=%s", resp.Body.String())
	}
	return env.Error.Code
}

func memberPrincipal() pkgAuth.Principal {
	return pkgAuth.Principal{UserID: uuid.New(), Role: enums.RoleUser}
}

func adminPrincipal() pkgAuth.Principal {
	return pkgAuth.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}
}

// newRequest builds a request carrying the principal and chi URL params.
func newRequest(method, target string, body io.Reader, principal pkgAuth.Principal, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if !principal.IsZero() {
		ctx = middleware.WithPrincipal(ctx, principal)
	}
	return req.WithContext(ctx)
}
