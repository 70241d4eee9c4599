package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/eventrentph/eventrent-backend/pkg/auth"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "eventrent-test",
		ExpirationMinutes: 15,
	}
}

func TestAuthSeedsActorFromToken(t *testing.T) {
	t.Parallel()

	cfg := jwtConfig()
	logg := logger.New(logger.Options{ServiceName: "test"})
	userID := uuid.New()

	token, err := pkgAuth.MintAccessToken(cfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   enums.MemberRoleAdmin,
	})
	require.NoError(t, err)

	var seen bool
	handler := Auth(cfg, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = true
		actor := ActorFromContext(r.Context())
		if actor.UserID != userID || actor.Role != enums.MemberRoleAdmin {
			t.Fatalf("unexpected actor: %+v", actor)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !seen {
		t.Fatal("handler was not reached")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	cfg := jwtConfig()
	logg := logger.New(logger.Options{ServiceName: "test"})
	handler := Auth(cfg, logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without valid credentials")
	}))

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing header", func(*http.Request) {}},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") }},
		{"wrong secret", func(r *http.Request) {
			other := cfg
			other.Secret = "different-secret"
			token, err := pkgAuth.MintAccessToken(other, time.Now().UTC(), pkgAuth.AccessTokenPayload{
				UserID: uuid.New(),
				Role:   enums.MemberRoleCustomer,
			})
			require.NoError(t, err)
			r.Header.Set("Authorization", "Bearer "+token)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test"})
	var reached bool
	handler := RequireRole("admin", logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/inventory/items", nil)
	req = req.WithContext(WithRole(req.Context(), "customer"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || reached {
		t.Fatalf("customer should be forbidden, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/inventory/items", nil)
	req = req.WithContext(WithRole(req.Context(), "admin"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !reached {
		t.Fatalf("admin should pass, got %d", rec.Code)
	}
}
