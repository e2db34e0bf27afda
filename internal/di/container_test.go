package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/config"
	"github.com/farmconnect/marketplace/internal/platform/idempotency"
	"github.com/farmconnect/marketplace/internal/repositories/memory"
	"github.com/farmconnect/marketplace/internal/services"
)

var testNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func memoryConfig() config.Config {
	return config.Config{
		Store:   config.StoreConfig{Driver: config.StoreDriverMemory},
		Events:  config.EventsConfig{Driver: config.EventsDriverNone},
		Removal: config.RemovalConfig{Delay: 2 * time.Hour, BatchSize: 10},
		Security: config.SecurityConfig{
			Environment: "test",
		},
	}
}

func TestNewContainerMemoryDriver(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig(), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close(ctx)

	if _, ok := c.Repositories.(*memory.Registry); !ok {
		t.Fatalf("expected memory registry, got %T", c.Repositories)
	}
	if _, ok := c.Idempotency.(*idempotency.MemoryStore); !ok {
		t.Fatalf("expected memory idempotency store, got %T", c.Idempotency)
	}
	if c.Locker != nil {
		t.Fatalf("expected no locker without redis")
	}
	svc := c.Services
	if svc.Orders == nil || svc.Crops == nil || svc.Notifications == nil || svc.CropRemovals == nil || svc.Reconciler == nil || svc.System == nil {
		t.Fatalf("expected every service wired, got %+v", svc)
	}

	report, err := svc.System.HealthReport(ctx)
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK || report.Environment != "test" {
		t.Fatalf("unexpected health report %+v", report)
	}
}

func TestContainerPlacesOrderAgainstSeededCrop(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	reg.Seed(domain.Crop{
		ID:           "crop-1",
		FarmerID:     "farmer-1",
		FarmerName:   "Ravi",
		CropName:     "Tomatoes",
		Quantity:     10,
		Unit:         "kg",
		PricePerUnit: 2.5,
		Status:       domain.CropStatusAvailable,
	})

	c, err := NewContainer(ctx, memoryConfig(), WithRegistry(reg), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close(ctx)

	order, err := c.Services.Orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		BuyerID:  "buyer-1",
		CropID:   "crop-1",
		Quantity: 4,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.Status != domain.OrderStatusPending || order.TotalAmount != 10 {
		t.Fatalf("unexpected order %+v", order)
	}

	inbox, err := c.Services.Notifications.ListForUser(ctx, "farmer-1", 10)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Data.OrderID != order.ID {
		t.Fatalf("expected farmer notified about %s, got %+v", order.ID, inbox)
	}
}

func TestNewContainerRejectsUnknownDrivers(t *testing.T) {
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.Store.Driver = "cassandra"
	if _, err := NewContainer(ctx, cfg); err == nil {
		t.Fatalf("expected unknown store driver error")
	}

	cfg = memoryConfig()
	cfg.Events.Driver = "carrier-pigeon"
	if _, err := NewContainer(ctx, cfg); err == nil {
		t.Fatalf("expected unknown events driver error")
	}
}

func TestRunExclusiveWithoutRedisRunsDirectly(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close(ctx)

	sentinel := errors.New("ran")
	if err := c.RunExclusive(ctx, "crop-removal-sweep", func(context.Context) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("expected fn to run, got %v", err)
	}
}
