package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const cropIDPrefix = "crop_"

// ErrCropInvalidInput signals a malformed crop listing.
var ErrCropInvalidInput = errors.New("crop: invalid input")

// CropServiceDeps bundles collaborators for the crop service.
type CropServiceDeps struct {
	Crops       repositories.CropRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cropService struct {
	crops  repositories.CropRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewCropService constructs the listing service.
func NewCropService(deps CropServiceDeps) (CropService, error) {
	if deps.Crops == nil {
		return nil, errors.New("crop service: crop repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cropService{
		crops:  deps.Crops,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateCrop publishes a listing as available. The farmer identity comes from the caller,
// never from the request body.
func (s *cropService) CreateCrop(ctx context.Context, cmd CreateCropCommand) (crop Crop, err error) {
	ctx, span := serviceTracer.Start(ctx, "CropService.CreateCrop", trace.WithAttributes(
		attribute.String("crop.name", cmd.CropName),
	))
	defer func() { endSpan(span, err) }()

	farmerID := strings.TrimSpace(cmd.FarmerID)
	if farmerID == "" {
		return Crop{}, fmt.Errorf("%w: farmer identity is required", ErrUnauthenticated)
	}
	if err := validateCropCommand(cmd); err != nil {
		return Crop{}, err
	}

	now := s.clock()
	crop = Crop{
		ID:             cropIDPrefix + s.newID(),
		FarmerID:       farmerID,
		FarmerName:     strings.TrimSpace(cmd.FarmerName),
		CropName:       strings.TrimSpace(cmd.CropName),
		Variety:        strings.TrimSpace(cmd.Variety),
		Quantity:       cmd.Quantity,
		Unit:           strings.TrimSpace(cmd.Unit),
		PricePerUnit:   cmd.PricePerUnit,
		IsOrganic:      cmd.IsOrganic,
		HarvestDate:    cmd.HarvestDate.UTC(),
		ExpiryDate:     cmd.ExpiryDate.UTC(),
		Location:       cmd.Location,
		Images:         cmd.Images,
		Description:    strings.TrimSpace(cmd.Description),
		Certifications: cmd.Certifications,
		Status:         domain.CropStatusAvailable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stored, err := s.crops.Insert(ctx, crop)
	if err != nil {
		if isConflict(err) {
			return Crop{}, fmt.Errorf("%w: crop id %s already taken", ErrCropInvalidInput, crop.ID)
		}
		return Crop{}, mapRepositoryError(err, ErrStoreUnavailable)
	}
	s.logger(ctx, "crop.created", map[string]any{
		"cropId":   stored.ID,
		"farmerId": stored.FarmerID,
		"quantity": stored.Quantity,
	})
	return stored, nil
}

func (s *cropService) GetCrop(ctx context.Context, cropID string) (Crop, error) {
	cropID = strings.TrimSpace(cropID)
	if cropID == "" {
		return Crop{}, fmt.Errorf("%w: crop id is required", ErrInvalidReference)
	}
	crop, err := s.crops.Get(ctx, cropID)
	if err != nil {
		return Crop{}, mapRepositoryError(err, ErrInvalidReference)
	}
	if crop.Status == domain.CropStatusDeleted {
		return Crop{}, fmt.Errorf("%w: crop %s was removed", ErrInvalidReference, cropID)
	}
	return crop, nil
}

func validateCropCommand(cmd CreateCropCommand) error {
	var problems []string
	if strings.TrimSpace(cmd.FarmerName) == "" {
		problems = append(problems, "farmer name is required")
	}
	if strings.TrimSpace(cmd.CropName) == "" {
		problems = append(problems, "crop name is required")
	}
	if strings.TrimSpace(cmd.Unit) == "" {
		problems = append(problems, "unit is required")
	}
	if cmd.Quantity <= 0 {
		problems = append(problems, "quantity must be positive")
	}
	if cmd.PricePerUnit <= 0 {
		problems = append(problems, "price per unit must be positive")
	}
	if !cmd.HarvestDate.IsZero() && !cmd.ExpiryDate.IsZero() && cmd.ExpiryDate.Before(cmd.HarvestDate) {
		problems = append(problems, "expiry date precedes harvest date")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCropInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
