package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// a single connection keeps the in-memory database alive across queries
	db.SetMaxOpenConns(1)

	service := &Service{db: db}
	if err := service.initSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func TestItems_SetGetOverwrite(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	kv := store.NewScoped(service, "paybis")

	if _, err := kv.GetItem(ctx, "partnerUserId"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := kv.SetItem(ctx, "partnerUserId", "first"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := kv.SetItem(ctx, "partnerUserId", "second"); err != nil {
		t.Fatalf("SetItem overwrite failed: %v", err)
	}

	value, err := kv.GetItem(ctx, "partnerUserId")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if value != "second" {
		t.Errorf("Expected second, got %s", value)
	}

	items, err := service.ListItems(ctx, "paybis")
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 || items["partnerUserId"] != "second" {
		t.Errorf("Unexpected items %v", items)
	}
}

func TestItems_IdentityTokenPersists(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	kv := store.NewScoped(service, "banxa")

	first, err := store.IdentityToken(ctx, kv, "username")
	if err != nil {
		t.Fatalf("IdentityToken failed: %v", err)
	}
	second, err := store.IdentityToken(ctx, store.NewScoped(service, "banxa"), "username")
	if err != nil {
		t.Fatalf("IdentityToken failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected the same token, got %s and %s", first, second)
	}
}

func TestItems_SetIfAbsentKeepsFirst(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first, err := service.SetIfAbsent(ctx, "banxa:username", "one")
	if err != nil {
		t.Fatalf("SetIfAbsent failed: %v", err)
	}
	second, err := service.SetIfAbsent(ctx, "banxa:username", "two")
	if err != nil {
		t.Fatalf("SetIfAbsent failed: %v", err)
	}
	if first != "one" || second != "one" {
		t.Errorf("Expected the first value to stick, got %s and %s", first, second)
	}
}

func TestItems_IdentityTokenConcurrent(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokens := make(chan string, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// separate Scoped values share only the database
			token, err := store.IdentityToken(ctx, store.NewScoped(service, "simplex"), "simplex_user_id")
			if err != nil {
				t.Errorf("IdentityToken failed: %v", err)
				return
			}
			tokens <- token
		}()
	}
	wg.Wait()
	close(tokens)

	seen := map[string]bool{}
	for token := range tokens {
		seen[token] = true
	}
	if len(seen) != 1 {
		t.Errorf("Expected one token across callers, got %v", seen)
	}
}

func TestItems_Delete(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.SetItem(ctx, "simplex:simplex_user_id", "abc"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := service.DeleteItem(ctx, "simplex:simplex_user_id"); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if err := service.DeleteItem(ctx, "simplex:simplex_user_id"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFlowEvents_RecordAndQuery(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []models.FlowEvent{
		{FlowId: "flow-1", Provider: "banxa", Direction: models.DirectionSell, Event: "Sell_Started", State: "AwaitingExternalAction", CreatedAt: base},
		{FlowId: "flow-1", Provider: "banxa", Direction: models.DirectionSell, Event: "Sell_Success", State: "Completed",
			OrderId: "ord-9", FiatCurrencyCode: "USD", FiatAmount: decimal.RequireFromString("100"),
			CryptoAsset: "bitcoin", CryptoAmount: decimal.RequireFromString("0.0015"), TxId: "0xabc", CreatedAt: base.Add(time.Minute)},
		{FlowId: "flow-2", Provider: "moonpay", Direction: models.DirectionBuy, Event: "Buy_Success", State: "Completed", CreatedAt: base},
	}
	for _, e := range events {
		if err := service.RecordFlowEvent(ctx, e); err != nil {
			t.Fatalf("RecordFlowEvent failed: %v", err)
		}
	}

	got, err := service.GetFlowEvents(ctx, "flow-1")
	if err != nil {
		t.Fatalf("GetFlowEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[1].Event != "Sell_Success" || got[1].OrderId != "ord-9" {
		t.Errorf("Unexpected last event %+v", got[1])
	}
	if !got[1].CryptoAmount.Equal(decimal.RequireFromString("0.0015")) {
		t.Errorf("Expected crypto amount 0.0015, got %s", got[1].CryptoAmount)
	}
	if got[0].Direction != models.DirectionSell {
		t.Errorf("Expected sell direction, got %s", got[0].Direction)
	}

	recent, err := service.GetRecentProviderEvents(ctx, "moonpay", 10)
	if err != nil {
		t.Fatalf("GetRecentProviderEvents failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Event != "Buy_Success" {
		t.Errorf("Unexpected moonpay events %+v", recent)
	}
}

func TestNewService_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"zero open conns", models.DatabaseConfig{Path: ":memory:", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"zero ping timeout", models.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}
