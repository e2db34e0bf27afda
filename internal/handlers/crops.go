package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/platform/httpx"
	"github.com/farmconnect/marketplace/internal/services"
)

const maxCropBodySize = 16 * 1024

type createCropRequest struct {
	CropName       string          `json:"cropName" validate:"required,max=120"`
	Variety        string          `json:"variety" validate:"max=120"`
	Quantity       float64         `json:"quantity" validate:"gt=0"`
	Unit           string          `json:"unit" validate:"required,max=32"`
	PricePerUnit   float64         `json:"pricePerUnit" validate:"gt=0"`
	IsOrganic      bool            `json:"isOrganic"`
	HarvestDate    *time.Time      `json:"harvestDate"`
	ExpiryDate     *time.Time      `json:"expiryDate"`
	Location       locationPayload `json:"location"`
	Images         []string        `json:"images" validate:"max=10,dive,url"`
	Description    string          `json:"description" validate:"max=2000"`
	Certifications []string        `json:"certifications" validate:"max=10,dive,max=80"`
}

// CropHandlers lets farmers publish listings and anyone signed in read them.
type CropHandlers struct {
	authn  *auth.Authenticator
	crops  services.CropService
	policy *bluemonday.Policy
}

// NewCropHandlers constructs the crop listing handlers.
func NewCropHandlers(authn *auth.Authenticator, crops services.CropService) *CropHandlers {
	return &CropHandlers{authn: authn, crops: crops, policy: bluemonday.StrictPolicy()}
}

// Routes registers the /crops endpoints.
func (h *CropHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createCrop)
	r.Get("/{cropID}", h.getCrop)
}

func (h *CropHandlers) createCrop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.crops == nil {
		httpx.WriteError(ctx, w, httpx.NewError("crop_service_unavailable", "crop service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(auth.RoleFarmer) {
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "only farmers may publish crops", http.StatusForbidden))
		return
	}

	var req createCropRequest
	if !decodeBody(w, r, maxCropBodySize, &req) {
		return
	}

	cmd := services.CreateCropCommand{
		FarmerID:     strings.TrimSpace(identity.UID),
		FarmerName:   identity.Name(),
		CropName:     plainText(h.policy, req.CropName),
		Variety:      plainText(h.policy, req.Variety),
		Quantity:     req.Quantity,
		Unit:         plainText(h.policy, req.Unit),
		PricePerUnit: req.PricePerUnit,
		IsOrganic:    req.IsOrganic,
		Location: domain.Location{
			Address: plainText(h.policy, req.Location.Address),
			Coordinates: domain.Coordinates{
				Lat: req.Location.Coordinates.Lat,
				Lng: req.Location.Coordinates.Lng,
			},
		},
		Images:      req.Images,
		Description: plainText(h.policy, req.Description),
	}
	if req.HarvestDate != nil {
		cmd.HarvestDate = *req.HarvestDate
	}
	if req.ExpiryDate != nil {
		cmd.ExpiryDate = *req.ExpiryDate
	}
	for _, cert := range req.Certifications {
		if cert = plainText(h.policy, cert); cert != "" {
			cmd.Certifications = append(cmd.Certifications, cert)
		}
	}

	crop, err := h.crops.CreateCrop(ctx, cmd)
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/crops/"+crop.ID)
	httpx.WriteJSON(w, http.StatusCreated, cropResponse{Crop: buildCropPayload(crop)})
}

func (h *CropHandlers) getCrop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.crops == nil {
		httpx.WriteError(ctx, w, httpx.NewError("crop_service_unavailable", "crop service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireUser(ctx, w); !ok {
		return
	}
	crop, err := h.crops.GetCrop(ctx, chi.URLParam(r, "cropID"))
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cropResponse{Crop: buildCropPayload(crop)})
}

type cropResponse struct {
	Crop cropPayload `json:"crop"`
}

type cropPayload struct {
	ID             string          `json:"id"`
	FarmerID       string          `json:"farmerId"`
	FarmerName     string          `json:"farmerName"`
	CropName       string          `json:"cropName"`
	Variety        string          `json:"variety,omitempty"`
	Quantity       float64         `json:"quantity"`
	Unit           string          `json:"unit"`
	PricePerUnit   float64         `json:"pricePerUnit"`
	IsOrganic      bool            `json:"isOrganic"`
	HarvestDate    string          `json:"harvestDate,omitempty"`
	ExpiryDate     string          `json:"expiryDate,omitempty"`
	Location       locationPayload `json:"location"`
	Images         []string        `json:"images,omitempty"`
	Description    string          `json:"description,omitempty"`
	Certifications []string        `json:"certifications,omitempty"`
	Status         string          `json:"status"`
	RemovalAfter   string          `json:"removalAfter,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

func buildCropPayload(crop services.Crop) cropPayload {
	return cropPayload{
		ID:           crop.ID,
		FarmerID:     crop.FarmerID,
		FarmerName:   crop.FarmerName,
		CropName:     crop.CropName,
		Variety:      crop.Variety,
		Quantity:     crop.Quantity,
		Unit:         crop.Unit,
		PricePerUnit: crop.PricePerUnit,
		IsOrganic:    crop.IsOrganic,
		HarvestDate:  formatTime(crop.HarvestDate),
		ExpiryDate:   formatTime(crop.ExpiryDate),
		Location: locationPayload{
			Address: crop.Location.Address,
			Coordinates: coordinatesPayload{
				Lat: crop.Location.Coordinates.Lat,
				Lng: crop.Location.Coordinates.Lng,
			},
		},
		Images:         crop.Images,
		Description:    crop.Description,
		Certifications: crop.Certifications,
		Status:         string(crop.Status),
		RemovalAfter:   formatOptionalTime(crop.RunAfter),
		CreatedAt:      formatTime(crop.CreatedAt),
		UpdatedAt:      formatTime(crop.UpdatedAt),
	}
}
