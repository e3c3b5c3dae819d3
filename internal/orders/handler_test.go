package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/shared"
)

type staticMembershipRepo struct {
	users map[string]membership.CompanyUser
}

func (r *staticMembershipRepo) GetCompanyUser(ctx context.Context, userID, companyID int64) (membership.CompanyUser, error) {
	user, ok := r.users[fmt.Sprintf("%d:%d", userID, companyID)]
	if !ok {
		return membership.CompanyUser{}, fmt.Errorf("membership: user %d company %d: %w", userID, companyID, shared.ErrNotFound)
	}
	return user, nil
}

func (r *staticMembershipRepo) ListOverrides(ctx context.Context, userID, companyID int64) ([]membership.PermissionOverride, error) {
	return nil, nil
}

func (r *staticMembershipRepo) UpsertOverride(ctx context.Context, ov membership.PermissionOverride) error {
	return nil
}

func (r *staticMembershipRepo) DeactivateMember(ctx context.Context, userID, companyID int64) error {
	return nil
}

func apiFixture(t *testing.T) (http.Handler, *memoryOrderRepo) {
	t.Helper()
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)

	members := &staticMembershipRepo{users: map[string]membership.CompanyUser{
		"1:10": {UserID: 1, CompanyID: 10, CompanyType: membership.CompanyTypeBrand, Role: membership.RoleManager, IsActive: true, DisplayName: "Ana"},
		"2:20": {UserID: 2, CompanyID: 20, CompanyType: membership.CompanyTypeSupplier, Role: membership.RoleManager, IsActive: true, DisplayName: "João"},
	}}
	mw := membership.NewMiddleware(membership.NewService(members), testLogger())
	handler := NewHandler(testLogger(), svc, mw)

	r := chi.NewRouter()
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(mw.ResolveActor)
		handler.MountRoutes(r)
	})
	return r, repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, userID, companyID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(membership.HeaderUserID, fmt.Sprintf("%d", userID))
	req.Header.Set(membership.HeaderCompanyID, fmt.Sprintf("%d", companyID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOrdersAPILifecycle(t *testing.T) {
	api, _ := apiFixture(t)

	rec := doJSON(t, api, http.MethodPost, "/api/orders/", 1, 10, map[string]any{
		"assignmentType":    "DIRECT",
		"supplierId":        20,
		"productRef":        "CAMISA-001",
		"description":       "Lote de camisas",
		"quantity":          100,
		"pricePerUnitCents": 5000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, StatusLaunched, created.Status)
	// The creating brand sees the full split.
	require.NotNil(t, created.PlatformFeeCents)
	require.Equal(t, int64(50000), *created.PlatformFeeCents)

	// The supplier accepts and sees net figures only.
	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/accept", 2, 20, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Nil(t, accepted.PlatformFeeCents)
	require.Equal(t, int64(450000), accepted.TotalValueCents)

	// Transitions endpoint answers for the supplier.
	rec = doJSON(t, api, http.MethodGet, "/api/orders/"+created.ID+"/transitions", 2, 20, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list TransitionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.True(t, list.CanAdvance)

	// Illegal jump maps to 422.
	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/status", 2, 20, map[string]any{
		"status": "FINALIZADO",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Legal step succeeds.
	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/status", 2, 20, map[string]any{
		"status": "FILA_DE_PRODUCAO",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrdersAPIValidationAndIdentity(t *testing.T) {
	api, _ := apiFixture(t)

	// Malformed payload fails validation before reaching the service.
	rec := doJSON(t, api, http.MethodPost, "/api/orders/", 1, 10, map[string]any{
		"assignmentType": "SOMETHING_ELSE",
		"productRef":     "X",
		"description":    "d",
		"quantity":       1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown membership is rejected at the middleware.
	rec = doJSON(t, api, http.MethodPost, "/api/orders/", 9, 99, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown order maps to 404.
	rec = doJSON(t, api, http.MethodGet, "/api/orders/does-not-exist", 1, 10, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrdersAPIReviewAndRework(t *testing.T) {
	api, repo := apiFixture(t)

	rec := doJSON(t, api, http.MethodPost, "/api/orders/", 1, 10, map[string]any{
		"assignmentType":    "DIRECT",
		"supplierId":        20,
		"productRef":        "CALCA-002",
		"description":       "Lote de calças",
		"quantity":          40,
		"pricePerUnitCents": 8000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.Equal(t, http.StatusOK, doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/accept", 2, 20, nil).Code)
	for _, status := range []string{"FILA_DE_PRODUCAO", "EM_PRODUCAO", "PRONTO", "EM_TRANSITO_PARA_MARCA"} {
		require.Equal(t, http.StatusOK, doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/status", 2, 20, map[string]any{"status": status}).Code)
	}
	require.Equal(t, http.StatusOK, doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/status", 1, 10, map[string]any{"status": "EM_REVISAO"}).Code)

	// The supplier may not file the review.
	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/reviews", 2, 20, map[string]any{
		"type": "FINAL", "totalQuantity": 40, "approvedQuantity": 40,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/reviews", 1, 10, map[string]any{
		"type":             "FINAL",
		"totalQuantity":    40,
		"rejectedQuantity": 40,
		"rejectedItems": []map[string]any{
			{"reason": "costura", "quantity": 40, "reworkRequired": true},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, StatusRejected, repo.orders[created.ID].Status)

	rec = doJSON(t, api, http.MethodPost, "/api/orders/"+created.ID+"/rework", 1, 10, map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	var child OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &child))
	require.Equal(t, 1, child.RevisionNumber)
	require.Equal(t, StatusAwaitingRework, child.Status)
	require.Equal(t, StatusAwaitingRework, repo.orders[created.ID].Status)
}
