package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories/memory"
)

func newTestCropService(t *testing.T, repo *memory.CropRepository) CropService {
	t.Helper()
	svc, err := NewCropService(CropServiceDeps{
		Crops:       repo,
		Clock:       func() time.Time { return testNow },
		IDGenerator: func() string { return "001" },
	})
	if err != nil {
		t.Fatalf("NewCropService: %v", err)
	}
	return svc
}

func maizeListing() CreateCropCommand {
	return CreateCropCommand{
		FarmerID:     "farmer-1",
		FarmerName:   "Green Acres",
		CropName:     " Maize ",
		Quantity:     40,
		Unit:         "kg",
		PricePerUnit: 1.2,
		HarvestDate:  time.Date(2025, 4, 28, 0, 0, 0, 0, time.UTC),
		ExpiryDate:   time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC),
		Location:     Location{Address: "Plot 7, River Rd"},
	}
}

func TestCreateCropPublishesAvailableListing(t *testing.T) {
	repo := memory.NewCropRepository()
	svc := newTestCropService(t, repo)

	crop, err := svc.CreateCrop(context.Background(), maizeListing())
	if err != nil {
		t.Fatalf("CreateCrop: %v", err)
	}
	if crop.ID != "crop_001" || crop.Status != domain.CropStatusAvailable || crop.CropName != "Maize" {
		t.Fatalf("unexpected crop: %+v", crop)
	}
	if !crop.CreatedAt.Equal(testNow) || !crop.Identifiable() {
		t.Fatalf("expected stamped identifiable crop, got %+v", crop)
	}

	stored, err := svc.GetCrop(context.Background(), "crop_001")
	if err != nil {
		t.Fatalf("GetCrop: %v", err)
	}
	if stored.Quantity != 40 || stored.FarmerID != "farmer-1" {
		t.Fatalf("unexpected stored crop: %+v", stored)
	}
}

func TestCreatedCropCanBeOrdered(t *testing.T) {
	f := newOrderFixture(t)
	svc, err := NewCropService(CropServiceDeps{Crops: f.crops, Clock: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("NewCropService: %v", err)
	}
	crop, err := svc.CreateCrop(context.Background(), maizeListing())
	if err != nil {
		t.Fatalf("CreateCrop: %v", err)
	}

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{BuyerID: "buyer-1", CropID: crop.ID, Quantity: 40})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.TotalAmount != 48 {
		t.Fatalf("expected total 48, got %v", order.TotalAmount)
	}
}

func TestCreateCropRejectsInvalidListings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateCropCommand)
		want   error
	}{
		{"no farmer", func(c *CreateCropCommand) { c.FarmerID = " " }, ErrUnauthenticated},
		{"no name", func(c *CreateCropCommand) { c.CropName = "" }, ErrCropInvalidInput},
		{"no farmer name", func(c *CreateCropCommand) { c.FarmerName = "" }, ErrCropInvalidInput},
		{"zero price", func(c *CreateCropCommand) { c.PricePerUnit = 0 }, ErrCropInvalidInput},
		{"zero quantity", func(c *CreateCropCommand) { c.Quantity = 0 }, ErrCropInvalidInput},
		{"expires before harvest", func(c *CreateCropCommand) { c.ExpiryDate = c.HarvestDate.Add(-time.Hour) }, ErrCropInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := memory.NewCropRepository()
			svc := newTestCropService(t, repo)
			cmd := maizeListing()
			tc.mutate(&cmd)
			if _, err := svc.CreateCrop(context.Background(), cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if _, err := repo.Get(context.Background(), "crop_001"); err == nil {
				t.Fatalf("expected nothing stored")
			}
		})
	}
}

func TestGetCropHidesRemovedListings(t *testing.T) {
	repo := memory.NewCropRepository()
	svc := newTestCropService(t, repo)
	if _, err := svc.CreateCrop(context.Background(), maizeListing()); err != nil {
		t.Fatalf("CreateCrop: %v", err)
	}
	if err := repo.MarkDeleted(context.Background(), "crop_001", testNow); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	if _, err := svc.GetCrop(context.Background(), "crop_001"); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
	if _, err := svc.GetCrop(context.Background(), "missing"); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference for unknown crop, got %v", err)
	}
}
