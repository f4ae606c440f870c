package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carbonledger/internal/config"
	"carbonledger/internal/logging"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"
	"carbonledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testAPIKey = "test-api-key"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupHandlerTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.Wallet{}, &model.Project{}, &model.Transaction{}, &model.OutboxMessage{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{LedgerEvents: "ledger"}},
		Auth: config.AuthConfig{
			JWTSecret:          "handler-secret",
			JWTIssuer:          "carbonledger-test",
			AccessTokenMinutes: 5,
			APIKey:             testAPIKey,
		},
	}
	return SetupRouter(db, nil, cfg, logging.Discard()), db
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q failed: %v", w.Body.String(), err)
		}
	}
	return w.Code, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s failed: %v", env.Data, err)
	}
}

// signUp creates a user through the API and returns a bearer header for it.
func signUp(t *testing.T, r *gin.Engine, name string) (map[string]string, CreateUserResponse) {
	t.Helper()
	apiKey := map[string]string{headerAPIKey: testAPIKey}
	email := name + "@example.com"

	status, env := doRequest(t, r, http.MethodPost, "/api/v1/user", gin.H{
		"username": name, "email": email, "password": "password123",
	}, apiKey)
	if status != http.StatusCreated {
		t.Fatalf("create user status %d: %s", status, env.Message)
	}
	var created CreateUserResponse
	decodeData(t, env, &created)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/user/sign-in", gin.H{
		"email": email, "password": "password123",
	}, apiKey)
	if status != http.StatusOK {
		t.Fatalf("sign in status %d: %s", status, env.Message)
	}
	var token service.Token
	decodeData(t, env, &token)
	return map[string]string{"Authorization": "Bearer " + token.AccessToken}, created
}

func TestPurchaseFlow(t *testing.T) {
	r, _ := setupHandlerTest(t)
	buyer, created := signUp(t, r, "buyer")
	seller, _ := signUp(t, r, "seller")

	status, env := doRequest(t, r, http.MethodPut, "/api/v1/wallet/topup/"+created.Wallet.ID.String(),
		gin.H{"amount": "25.00", "request_id": "topup-1"}, buyer)
	if status != http.StatusOK {
		t.Fatalf("topup status %d: %s", status, env.Message)
	}

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/project", gin.H{
		"name":              "Kelp Forest",
		"description":       "Ocean sequestration",
		"total_credits":     "1000",
		"available_credits": "1000",
		"price_per_credit":  "0.33",
	}, seller)
	if status != http.StatusCreated {
		t.Fatalf("create project status %d: %s", status, env.Message)
	}
	var project model.Project
	decodeData(t, env, &project)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/purchase", gin.H{
		"project_id": project.ID,
		"amount":     "10.00",
		"mode":       model.PurchaseModeByBudget,
		"request_id": "buy-1",
	}, buyer)
	if status != http.StatusOK {
		t.Fatalf("purchase status %d: %s", status, env.Message)
	}
	var purchase PurchaseResponse
	decodeData(t, env, &purchase)
	if !purchase.Credits.Equal(decimal.RequireFromString("30.30")) || !purchase.Remainder.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("unexpected purchase result %+v", purchase)
	}
	if purchase.Replayed {
		t.Fatal("first purchase should not be a replay")
	}

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/wallet", nil, buyer)
	if status != http.StatusOK {
		t.Fatalf("wallet status %d: %s", status, env.Message)
	}
	var summary service.WalletSummary
	decodeData(t, env, &summary)
	if !summary.Wallet.Balance.Equal(decimal.RequireFromString("15.001")) {
		t.Fatalf("balance want 15.001 got %s", summary.Wallet.Balance)
	}
	if !summary.CreditBalance.Equal(decimal.RequireFromString("30.30")) {
		t.Fatalf("credit balance want 30.30 got %s", summary.CreditBalance)
	}

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/wallet/transactions?page=1&page_size=10", nil, buyer)
	if status != http.StatusOK {
		t.Fatalf("transactions status %d: %s", status, env.Message)
	}
	var page struct {
		List  []model.Transaction `json:"list"`
		Total int64               `json:"total"`
	}
	decodeData(t, env, &page)
	if page.Total != 2 || len(page.List) != 2 {
		t.Fatalf("want 2 ledger entries got %d", page.Total)
	}
}

func TestPurchaseErrorStatuses(t *testing.T) {
	r, _ := setupHandlerTest(t)
	buyer, _ := signUp(t, r, "poor")
	seller, _ := signUp(t, r, "owner")

	_, env := doRequest(t, r, http.MethodPost, "/api/v1/project", gin.H{
		"name": "Solar Farm", "description": "Avoided emissions",
		"total_credits": 5, "available_credits": 5, "price_per_credit": 1,
	}, seller)
	var project model.Project
	decodeData(t, env, &project)

	cases := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"insufficient balance", gin.H{"project_id": project.ID, "amount": "1", "mode": model.PurchaseModeByCredit}, http.StatusBadRequest},
		{"insufficient credits", gin.H{"project_id": project.ID, "amount": "6", "mode": model.PurchaseModeByCredit}, http.StatusBadRequest},
		{"invalid mode", gin.H{"project_id": project.ID, "amount": "1", "mode": "BY_HOPE"}, http.StatusBadRequest},
		{"missing project", gin.H{"project_id": "3b241101-e2bb-4255-8caf-4136c566a962", "amount": "1", "mode": model.PurchaseModeByCredit}, http.StatusNotFound},
		{"no project id", gin.H{"amount": "1", "mode": model.PurchaseModeByCredit}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := doRequest(t, r, http.MethodPost, "/api/v1/transaction/purchase", tc.body, buyer)
			if status != tc.status {
				t.Fatalf("status want %d got %d (%s)", tc.status, status, env.Message)
			}
			if env.Code != tc.status {
				t.Fatalf("envelope code want %d got %d", tc.status, env.Code)
			}
		})
	}
}

func TestAuthGuards(t *testing.T) {
	r, _ := setupHandlerTest(t)
	owner, _ := signUp(t, r, "carol")
	other, _ := signUp(t, r, "dave")

	if status, _ := doRequest(t, r, http.MethodGet, "/api/v1/wallet", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("missing token want 401 got %d", status)
	}
	if status, _ := doRequest(t, r, http.MethodGet, "/api/v1/wallet", nil, map[string]string{"Authorization": "Bearer nope"}); status != http.StatusUnauthorized {
		t.Fatalf("bad token want 401 got %d", status)
	}
	if status, _ := doRequest(t, r, http.MethodPost, "/api/v1/user", gin.H{"username": "eve", "email": "eve@example.com", "password": "password123"},
		map[string]string{headerAPIKey: "wrong"}); status != http.StatusUnauthorized {
		t.Fatalf("wrong api key want 401 got %d", status)
	}
	if status, _ := doRequest(t, r, http.MethodPost, "/api/v1/user/sign-in", gin.H{"email": "carol@example.com", "password": "bad-password"},
		map[string]string{headerAPIKey: testAPIKey}); status != http.StatusUnauthorized {
		t.Fatalf("wrong password want 401 got %d", status)
	}

	status, env := doRequest(t, r, http.MethodPost, "/api/v1/user", gin.H{"username": "carol", "email": "carol2@example.com", "password": "password123"},
		map[string]string{headerAPIKey: testAPIKey})
	if status != http.StatusConflict || env.Message != "This username is already taken." {
		t.Fatalf("duplicate username want 409 got %d (%s)", status, env.Message)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/v1/project", gin.H{
		"name": "Biochar", "description": "Soil carbon", "total_credits": "10", "available_credits": "10", "price_per_credit": "2",
	}, owner)
	var project model.Project
	decodeData(t, env, &project)

	if status, _ := doRequest(t, r, http.MethodDelete, "/api/v1/project/"+project.ID.String(), nil, other); status != http.StatusForbidden {
		t.Fatalf("foreign deactivate want 403 got %d", status)
	}
	if status, _ := doRequest(t, r, http.MethodDelete, "/api/v1/project/"+project.ID.String(), nil, owner); status != http.StatusOK {
		t.Fatalf("owner deactivate want 200 got %d", status)
	}
	if status, _ := doRequest(t, r, http.MethodGet, "/api/v1/project/"+project.ID.String(), nil, owner); status != http.StatusNotFound {
		t.Fatalf("deactivated project want 404 got %d", status)
	}
}

func TestListAndGetProjects(t *testing.T) {
	r, _ := setupHandlerTest(t)
	owner, _ := signUp(t, r, "heidi")

	var ids []string
	for _, name := range []string{"Kelp Farming", "Cookstoves"} {
		status, env := doRequest(t, r, http.MethodPost, "/api/v1/project", gin.H{
			"name": name, "description": "Project " + name, "total_credits": "50", "available_credits": "50", "price_per_credit": "3.25",
		}, owner)
		if status != http.StatusCreated {
			t.Fatalf("create project status %d: %s", status, env.Message)
		}
		var p model.Project
		decodeData(t, env, &p)
		ids = append(ids, p.ID.String())
	}

	status, env := doRequest(t, r, http.MethodGet, "/api/v1/project?page=1&page_size=1", nil, owner)
	if status != http.StatusOK {
		t.Fatalf("list status %d: %s", status, env.Message)
	}
	var page struct {
		List     []model.Project `json:"list"`
		Total    int64           `json:"total"`
		PageSize int             `json:"page_size"`
	}
	decodeData(t, env, &page)
	if page.Total != 2 || len(page.List) != 1 || page.PageSize != 1 {
		t.Fatalf("want 1 of 2 projects, got %d of %d (page size %d)", len(page.List), page.Total, page.PageSize)
	}

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/project/"+ids[0], nil, owner)
	if status != http.StatusOK {
		t.Fatalf("get status %d: %s", status, env.Message)
	}
	var got model.Project
	decodeData(t, env, &got)
	if got.Name != "Kelp Farming" || !got.PricePerCredit.Equal(decimal.RequireFromString("3.25")) {
		t.Fatalf("unexpected project %+v", got)
	}

	if status, _ := doRequest(t, r, http.MethodGet, "/api/v1/project/not-a-uuid", nil, owner); status != http.StatusBadRequest {
		t.Fatalf("bad id want 400 got %d", status)
	}
}

func TestTopupForeignWalletIsNotFound(t *testing.T) {
	r, _ := setupHandlerTest(t)
	_, victim := signUp(t, r, "frank")
	attacker, _ := signUp(t, r, "grace")

	status, _ := doRequest(t, r, http.MethodPut, "/api/v1/wallet/topup/"+victim.Wallet.ID.String(), gin.H{"amount": "5"}, attacker)
	if status != http.StatusNotFound {
		t.Fatalf("foreign wallet want 404 got %d", status)
	}
	status, _ = doRequest(t, r, http.MethodPut, "/api/v1/wallet/topup/not-a-uuid", gin.H{"amount": "5"}, attacker)
	if status != http.StatusBadRequest {
		t.Fatalf("bad wallet id want 400 got %d", status)
	}
}

func TestHealth(t *testing.T) {
	r, _ := setupHandlerTest(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health want 200 got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrInsufficientBalance, http.StatusBadRequest},
		{&service.ValidationError{Field: "name", Message: "short"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", repository.ErrProjectNotFound), http.StatusNotFound},
		{&service.ConflictError{Message: "dup"}, http.StatusConflict},
		{repository.ErrOptimisticLock, http.StatusConflict},
		{service.ErrRequestIDReused, http.StatusConflict},
		{service.ErrForbidden, http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) want %d got %d", tc.err, tc.want, got)
		}
	}
}
