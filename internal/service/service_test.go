package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"carbonledger/internal/auth"
	"carbonledger/internal/config"
	"carbonledger/internal/logging"
	"carbonledger/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	// one connection: transactions queue up instead of failing on SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&model.User{},
		&model.Wallet{},
		&model.Project{},
		&model.Transaction{},
		&model.OutboxMessage{},
	); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{LedgerEvents: "carbon-ledger-events"}},
		Auth:  config.AuthConfig{JWTSecret: "test-secret", JWTIssuer: "test", APIKey: "key"},
	}
}

func newSettlement(db *gorm.DB) *SettlementService {
	return NewSettlementService(db, nil, testConfig(), logging.Discard())
}

func testTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", "test", time.Hour)
}

// seedUser creates an active user whose wallet holds balance.
func seedUser(t *testing.T, db *gorm.DB, balance string) (*model.User, *model.Wallet) {
	t.Helper()
	id := uuid.New()
	user := &model.User{
		Base:     model.Base{ID: id},
		Username: "user-" + id.String()[:8],
		Email:    id.String()[:8] + "@example.com",
		Password: "x",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	wallet := model.NewWallet(user.ID)
	wallet.Balance = decimal.RequireFromString(balance)
	if err := db.Create(wallet).Error; err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	return user, wallet
}

func seedProject(t *testing.T, db *gorm.DB, owner uuid.UUID, available, price string) *model.Project {
	t.Helper()
	project := &model.Project{
		Name:             "project-" + uuid.NewString()[:8],
		Description:      "reforestation",
		TotalCredits:     decimal.RequireFromString("100000"),
		AvailableCredits: decimal.RequireFromString(available),
		PricePerCredit:   decimal.RequireFromString(price),
	}
	project.Stamp(owner)
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("create project failed: %v", err)
	}
	return project
}

func reloadWallet(t *testing.T, db *gorm.DB, id uuid.UUID) *model.Wallet {
	t.Helper()
	var w model.Wallet
	if err := db.First(&w, "id = ?", id).Error; err != nil {
		t.Fatalf("reload wallet failed: %v", err)
	}
	return &w
}

func reloadProject(t *testing.T, db *gorm.DB, id uuid.UUID) *model.Project {
	t.Helper()
	var p model.Project
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload project failed: %v", err)
	}
	return &p
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s want %s got %s", label, want, got)
	}
}

var bg = context.Background()
