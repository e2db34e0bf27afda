package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/services"
)

type stubCropService struct {
	createFn func(context.Context, services.CreateCropCommand) (services.Crop, error)
	getFn    func(context.Context, string) (services.Crop, error)
}

func (s *stubCropService) CreateCrop(ctx context.Context, cmd services.CreateCropCommand) (services.Crop, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Crop{}, errors.New("not implemented")
}

func (s *stubCropService) GetCrop(ctx context.Context, cropID string) (services.Crop, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cropID)
	}
	return services.Crop{}, errors.New("not implemented")
}

func newCropRouter(identity *auth.Identity, svc services.CropService) chi.Router {
	handler := NewCropHandlers(nil, svc)
	router := chi.NewRouter()
	router.Use(withTestIdentity(identity))
	router.Route("/crops", handler.Routes)
	return router
}

func sampleCrop() services.Crop {
	return services.Crop{
		ID:           "crop_001",
		FarmerID:     "farmer-1",
		FarmerName:   "Green Acres",
		CropName:     "Tomatoes",
		Quantity:     40,
		Unit:         "kg",
		PricePerUnit: 2.5,
		Status:       domain.CropStatusAvailable,
		Location:     domain.Location{Address: "12 Farm Rd"},
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func TestCropHandlersCreateCrop(t *testing.T) {
	var captured services.CreateCropCommand
	svc := &stubCropService{
		createFn: func(_ context.Context, cmd services.CreateCropCommand) (services.Crop, error) {
			captured = cmd
			return sampleCrop(), nil
		},
	}
	farmer := &auth.Identity{UID: "farmer-1", DisplayName: "Green Acres", Roles: []string{auth.RoleFarmer}}
	router := newCropRouter(farmer, svc)

	body := `{"cropName":"<i>Tomatoes</i>","quantity":40,"unit":"kg","pricePerUnit":2.5,` +
		`"location":{"address":"12 Farm Rd","coordinates":{"lat":1.5,"lng":2.5}},` +
		`"description":"Picked & packed <script>x</script>today","certifications":["USDA","  "]}`
	req := httptest.NewRequest(http.MethodPost, "/crops", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.FarmerID != "farmer-1" || captured.FarmerName != "Green Acres" {
		t.Fatalf("expected farmer taken from identity, got %+v", captured)
	}
	if captured.CropName != "Tomatoes" {
		t.Fatalf("expected markup stripped from crop name, got %q", captured.CropName)
	}
	if captured.Description != "Picked & packed today" {
		t.Fatalf("expected plain description, got %q", captured.Description)
	}
	if len(captured.Certifications) != 1 || captured.Certifications[0] != "USDA" {
		t.Fatalf("expected blank certifications dropped, got %v", captured.Certifications)
	}
	if captured.Location.Coordinates.Lat != 1.5 || captured.Location.Coordinates.Lng != 2.5 {
		t.Fatalf("unexpected coordinates %+v", captured.Location)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/crops/crop_001" {
		t.Fatalf("unexpected location header %q", loc)
	}

	var resp cropResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Crop.ID != "crop_001" || resp.Crop.Status != "available" {
		t.Fatalf("unexpected crop payload %+v", resp.Crop)
	}
}

func TestCropHandlersCreateCropRejections(t *testing.T) {
	called := false
	svc := &stubCropService{
		createFn: func(_ context.Context, cmd services.CreateCropCommand) (services.Crop, error) {
			called = true
			if cmd.Unit == "crates" {
				return services.Crop{}, fmt.Errorf("%w: expiry date must follow harvest date", services.ErrCropInvalidInput)
			}
			return sampleCrop(), nil
		},
	}
	valid := `{"cropName":"Tomatoes","quantity":40,"unit":"kg","pricePerUnit":2.5}`

	cases := []struct {
		name     string
		identity *auth.Identity
		body     string
		status   int
		code     string
		reached  bool
	}{
		{"anonymous", nil, valid, http.StatusUnauthorized, "unauthenticated", false},
		{"buyer", &auth.Identity{UID: "buyer-1", Roles: []string{auth.RoleBuyer}}, valid, http.StatusForbidden, "permission_denied", false},
		{"zero quantity", &auth.Identity{UID: "farmer-1", Roles: []string{auth.RoleFarmer}}, `{"cropName":"Tomatoes","quantity":0,"unit":"kg","pricePerUnit":2.5}`, http.StatusBadRequest, "invalid_request", false},
		{"service rejects", &auth.Identity{UID: "farmer-1", DisplayName: "Green Acres", Roles: []string{auth.RoleFarmer}}, `{"cropName":"Tomatoes","quantity":4,"unit":"crates","pricePerUnit":2.5}`, http.StatusBadRequest, "invalid_request", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called = false
			router := newCropRouter(tc.identity, svc)
			req := httptest.NewRequest(http.MethodPost, "/crops", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if code := errorCodeOf(t, rr); code != tc.code {
				t.Fatalf("expected error %q, got %q", tc.code, code)
			}
			if called != tc.reached {
				t.Fatalf("expected service reached=%v, got %v", tc.reached, called)
			}
		})
	}
}

func TestCropHandlersGetCrop(t *testing.T) {
	svc := &stubCropService{
		getFn: func(_ context.Context, cropID string) (services.Crop, error) {
			if cropID != "crop_001" {
				return services.Crop{}, fmt.Errorf("%w: crop %s not found", services.ErrInvalidReference, cropID)
			}
			return sampleCrop(), nil
		},
	}
	router := newCropRouter(&auth.Identity{UID: "buyer-1", Roles: []string{auth.RoleBuyer}}, svc)

	req := httptest.NewRequest(http.MethodGet, "/crops/crop_001", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cropResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Crop.CropName != "Tomatoes" || resp.Crop.Location.Address != "12 Farm Rd" {
		t.Fatalf("unexpected crop payload %+v", resp.Crop)
	}

	req = httptest.NewRequest(http.MethodGet, "/crops/crop_missing", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code := errorCodeOf(t, rr); code != "invalid_reference" {
		t.Fatalf("expected invalid_reference, got %q", code)
	}
}
