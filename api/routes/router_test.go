package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/internal/identity"
	"github.com/angelmondragon/marketsettle-backend/internal/orders"
	"github.com/angelmondragon/marketsettle-backend/pkg/auth"
	"github.com/angelmondragon/marketsettle-backend/pkg/config"
	"github.com/angelmondragon/marketsettle-backend/pkg/db/models"
	"github.com/angelmondragon/marketsettle-backend/pkg/enums"
	"github.com/angelmondragon/marketsettle-backend/pkg/logger"
	"github.com/angelmondragon/marketsettle-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, userID uuid.UUID, role enums.ActorRole) (identity.Actor, error) {
	return identity.Actor{UserID: userID, Role: role, SellerIDs: identity.NewSet(userID)}, nil
}

type stubOrders struct {
	orders.Service
	buyer uuid.UUID
}

func (s *stubOrders) List(_ context.Context, actor identity.Actor, _ orders.ListFilters) (pagination.Page[models.Order], error) {
	s.buyer = actor.UserID
	return pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

type stubDLQ struct {
	calls int
}

func (s *stubDLQ) ListDLQ(context.Context, enums.OutboxDLQStatus, int) ([]models.OutboxDLQ, error) {
	s.calls++
	return nil, nil
}

func (s *stubDLQ) RequeueFromDLQ(context.Context, uuid.UUID, *uuid.UUID) (*models.OutboxEvent, error) {
	return &models.OutboxEvent{ID: uuid.New()}, nil
}

func (s *stubDLQ) ResolveDLQItem(context.Context, uuid.UUID, *uuid.UUID, string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		API: config.APIConfig{RateLimitPerMinute: 60},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config, ordersSvc orders.Service, dlq *stubDLQ) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, Dependencies{
		DB:       stubPinger{},
		Identity: stubResolver{},
		Orders:   ordersSvc,
		Outbox:   dlq,
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), &stubOrders{}, &stubDLQ{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := do(router, http.MethodGet, path, "", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestProtectedRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), &stubOrders{}, &stubDLQ{})

	resp := do(router, http.MethodGet, "/api/v1/orders", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"success":false`) {
		t.Fatalf("expected failure envelope, got %s", resp.Body.String())
	}
}

func TestOrdersRouteCarriesActor(t *testing.T) {
	cfg := testConfig()
	svc := &stubOrders{}
	router := newTestRouter(cfg, svc, &stubDLQ{})
	userID := uuid.New()

	resp := do(router, http.MethodGet, "/api/v1/orders", buildToken(t, cfg, enums.ActorBuyer, userID), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.buyer != userID {
		t.Fatalf("expected actor %s got %s", userID, svc.buyer)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	dlq := &stubDLQ{}
	router := newTestRouter(cfg, &stubOrders{}, dlq)

	resp := do(router, http.MethodGet, "/api/admin/v1/outbox/dlq", buildToken(t, cfg, enums.ActorSeller, uuid.New()), "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if dlq.calls != 0 {
		t.Fatalf("handler must not run for non-admin")
	}

	resp = do(router, http.MethodGet, "/api/admin/v1/outbox/dlq", buildToken(t, cfg, enums.ActorAdmin, uuid.New()), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if dlq.calls != 1 {
		t.Fatalf("expected one dlq listing, got %d", dlq.calls)
	}
}

func TestUnwiredEngineReportsInternalError(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubOrders{}, &stubDLQ{})

	resp := do(router, http.MethodGet, "/api/v1/payouts/"+uuid.NewString(), buildToken(t, cfg, enums.ActorSeller, uuid.New()), "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(testConfig(), &stubOrders{}, &stubDLQ{})

	resp := do(router, http.MethodGet, "/api/v1/unknown", "", "")
	if resp.Code != http.StatusUnauthorized && resp.Code != http.StatusNotFound {
		t.Fatalf("expected 401 or 404 got %d", resp.Code)
	}
}
