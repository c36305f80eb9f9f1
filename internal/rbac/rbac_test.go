package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

func TestIssueAndParse(t *testing.T) {
	auth := NewAuthenticator("s3cret", nil)
	token, err := auth.Issue(shared.Actor{ID: 12, Permissions: []string{" Inventory.View ", PermTransferShip}}, time.Hour)
	require.NoError(t, err)

	actor, err := auth.Parse(token)
	require.NoError(t, err)
	require.Equal(t, int64(12), actor.ID)
	require.Equal(t, []string{PermInventoryView, PermTransferShip}, actor.Permissions)

	_, err = NewAuthenticator("other", nil).Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := auth.Issue(shared.Actor{ID: 12}, -time.Minute)
	require.NoError(t, err)
	_, err = auth.Parse(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Parse(mustIssue(t, auth, 0))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func mustIssue(t *testing.T, auth *Authenticator, id int64) string {
	t.Helper()
	token, err := auth.Issue(shared.Actor{ID: id}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuthenticatorMiddleware(t *testing.T) {
	auth := NewAuthenticator("s3cret", nil)
	var seen shared.Actor
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mustIssue(t, auth, 5))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, int64(5), seen.ID)
}

func TestRequireAnyAndAll(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	serve := func(mw func(http.Handler) http.Handler, actor *shared.Actor) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if actor != nil {
			req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
		}
		rr := httptest.NewRecorder()
		mw(ok).ServeHTTP(rr, req)
		return rr.Code
	}
	m := Middleware{}
	viewer := &shared.Actor{ID: 1, Permissions: []string{PermInventoryView}}
	shipper := &shared.Actor{ID: 2, Permissions: []string{PermInventoryView, PermTransferShip}}

	require.Equal(t, http.StatusUnauthorized, serve(m.RequireAny(PermInventoryView), nil))
	require.Equal(t, http.StatusOK, serve(m.RequireAny(PermInventoryView, PermTransferShip), viewer))
	require.Equal(t, http.StatusForbidden, serve(m.RequireAny(PermTransferShip), viewer))
	require.Equal(t, http.StatusForbidden, serve(m.RequireAll(PermInventoryView, PermTransferShip), viewer))
	require.Equal(t, http.StatusOK, serve(m.RequireAll(PermInventoryView, PermTransferShip), shipper))
	require.Equal(t, http.StatusOK, serve(m.RequireAny(), nil))
	require.Len(t, All(), 11)
}
