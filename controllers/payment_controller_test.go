package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankedge/middleware"
	"bankedge/models"
	"bankedge/services"
	"bankedge/utils"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	payment *PaymentController
	pool    *services.IntakePool
	store   *services.TransactionStore
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	accounts := services.NewMemoryAccountStore()
	require.NoError(t, accounts.Create(context.Background(), &models.Account{
		Identity: "admin.johor@bankedge.com",
		Password: "hash",
		Role:     models.RoleAdmin,
		Balance:  decimal.NewFromInt(1000),
	}))

	store := services.NewTransactionStore(services.NewMemoryRecordStore())
	intake := services.NewIntakeService(
		services.NewIdentityService(),
		services.NewLedgerService(accounts),
		services.NewPolicyEngine(nil),
		store,
		nil,
		20.0,
		30*24*time.Hour,
	)
	pool := services.NewIntakePool(intake, 2, 8)
	pool.Start()
	t.Cleanup(pool.Stop)

	payment := NewPaymentController(services.NewSimulatedGateway(), pool, store, "")
	return &controllerFixture{payment: payment, pool: pool, store: store}
}

// authRequest собирает запрос с данными пользователя в контексте,
// как их кладет AuthMiddleware
func authRequest(method, target string, body []byte, identity, role, location string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := req.Context()
	ctx = context.WithValue(ctx, middleware.ContextIdentity, identity)
	ctx = context.WithValue(ctx, middleware.ContextRole, role)
	ctx = context.WithValue(ctx, middleware.ContextLocation, location)
	return req.WithContext(ctx)
}

func TestConfirmPayment(t *testing.T) {
	f := newControllerFixture(t)

	body, _ := json.Marshal(ConfirmRequest{
		ReferenceID: services.NewSimulatedReference(),
		Amount:      decimal.NewFromInt(200),
		Type:        "Payment",
	})
	req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")

	rr := httptest.NewRecorder()
	f.payment.ConfirmPayment(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result services.ConfirmationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, models.StatusCommitted, result.Status)
	assert.Equal(t, "800", result.NewBalance.String())
}

func TestConfirmPaymentInsufficientFunds(t *testing.T) {
	f := newControllerFixture(t)

	body, _ := json.Marshal(ConfirmRequest{
		ReferenceID: "pi_sim_http_poor",
		Amount:      decimal.NewFromInt(5000),
		Type:        "Payment",
	})
	req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")

	rr := httptest.NewRecorder()
	f.payment.ConfirmPayment(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestConfirmPaymentGatewayRejects(t *testing.T) {
	f := newControllerFixture(t)

	t.Run("неизвестный reference id", func(t *testing.T) {
		body, _ := json.Marshal(ConfirmRequest{
			ReferenceID: "pi_real_123",
			Amount:      decimal.NewFromInt(100),
			Type:        "Payment",
		})
		req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")

		rr := httptest.NewRecorder()
		f.payment.ConfirmPayment(rr, req)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("отклоненный платеж", func(t *testing.T) {
		body, _ := json.Marshal(ConfirmRequest{
			ReferenceID: "pi_sim_123_fail",
			Amount:      decimal.NewFromInt(100),
			Type:        "Payment",
		})
		req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")

		rr := httptest.NewRecorder()
		f.payment.ConfirmPayment(rr, req)
		assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	})
}

func TestConfirmPaymentValidation(t *testing.T) {
	f := newControllerFixture(t)

	body, _ := json.Marshal(ConfirmRequest{
		ReferenceID: "pi_sim_bad",
		Amount:      decimal.NewFromInt(100),
		Type:        "Loan",
	})
	req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")

	rr := httptest.NewRecorder()
	f.payment.ConfirmPayment(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfirmPaymentWebhookSignature(t *testing.T) {
	f := newControllerFixture(t)
	signed := NewPaymentController(services.NewSimulatedGateway(), f.pool, f.store, "webhook-key")

	body, _ := json.Marshal(ConfirmRequest{
		ReferenceID: services.NewSimulatedReference(),
		Amount:      decimal.NewFromInt(100),
		Type:        "Payment",
	})

	t.Run("верная подпись", func(t *testing.T) {
		req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		req.Header.Set("X-Gateway-Signature", utils.GenerateHMAC(string(body), []byte("webhook-key")))

		rr := httptest.NewRecorder()
		signed.ConfirmPayment(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("неверная подпись", func(t *testing.T) {
		req := authRequest("POST", "/api/payments/confirm", body, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		req.Header.Set("X-Gateway-Signature", "forged")

		rr := httptest.NewRecorder()
		signed.ConfirmPayment(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestConfirmPaymentUnauthorized(t *testing.T) {
	f := newControllerFixture(t)

	req := httptest.NewRequest("POST", "/api/payments/confirm", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()
	f.payment.ConfirmPayment(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetTransactionsLocationScope(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	deviceA, deviceB := "edge-1", "edge-2"
	for _, rec := range []*models.TransactionRecord{
		{ReferenceID: "pi_sim_t1", Amount: decimal.NewFromInt(10), Type: "Payment", Status: models.StatusCommitted, Tier: models.TierEdge, CustomerID: "admin.johor@bankedge.com", DeviceID: &deviceA, Timestamp: time.Now()},
		{ReferenceID: "pi_sim_t2", Amount: decimal.NewFromInt(20), Type: "Payment", Status: models.StatusCommitted, Tier: models.TierEdge, CustomerID: "admin.kedah@bankedge.com", DeviceID: &deviceB, Timestamp: time.Now()},
	} {
		require.NoError(t, f.store.Upsert(ctx, rec))
	}

	t.Run("admin видит только свою локацию", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions", nil, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		rr := httptest.NewRecorder()
		f.payment.GetTransactions(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp TransactionListResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.EqualValues(t, 1, resp.Total)
		require.Len(t, resp.Transactions, 1)
		assert.Equal(t, "pi_sim_t1", resp.Transactions[0].ReferenceID)
	})

	t.Run("superadmin видит все", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions", nil, "superadmin@bankedge.com", models.RoleSuperAdmin, "")
		rr := httptest.NewRecorder()
		f.payment.GetTransactions(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp TransactionListResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.EqualValues(t, 2, resp.Total)
	})

	t.Run("admin без локации не допускается", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions", nil, "admin@bankedge.com", models.RoleAdmin, "")
		rr := httptest.NewRecorder()
		f.payment.GetTransactions(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGetTransactionByReference(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	device := "edge-1"
	require.NoError(t, f.store.Upsert(ctx, &models.TransactionRecord{
		ReferenceID: "pi_sim_one",
		Amount:      decimal.NewFromInt(10),
		Type:        "Payment",
		Status:      models.StatusCommitted,
		Tier:        models.TierEdge,
		CustomerID:  "admin.johor@bankedge.com",
		DeviceID:    &device,
		Timestamp:   time.Now(),
	}))

	router := mux.NewRouter()
	f.payment.RegisterRoutes(router.PathPrefix("/api").Subrouter())

	t.Run("своя локация", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions/pi_sim_one", nil, "admin.johor@bankedge.com", models.RoleAdmin, "edge-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("чужая локация запрещена", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions/pi_sim_one", nil, "admin.kedah@bankedge.com", models.RoleAdmin, "edge-2")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("не найдено", func(t *testing.T) {
		req := authRequest("GET", "/api/transactions/pi_sim_none", nil, "superadmin@bankedge.com", models.RoleSuperAdmin, "")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
