package domain

import "time"

// CropStatus enumerates the lifecycle states of a crop listing.
type CropStatus string

const (
	// CropStatusAvailable marks a listing buyers can order against.
	CropStatusAvailable CropStatus = "available"
	// CropStatusReserved marks a listing a farmer has put on hold.
	CropStatusReserved CropStatus = "reserved"
	// CropStatusSold marks a listing whose stock was depleted by buyer orders.
	CropStatusSold CropStatus = "sold"
	// CropStatusSoldOut marks a listing the farmer confirmed an order for; it is pending removal.
	CropStatusSoldOut CropStatus = "sold_out"
	// CropStatusDeleted marks a listing removed from the marketplace.
	CropStatusDeleted CropStatus = "deleted"
)

// Valid reports whether the status is one of the known crop states.
func (s CropStatus) Valid() bool {
	switch s {
	case CropStatusAvailable, CropStatusReserved, CropStatusSold, CropStatusSoldOut, CropStatusDeleted:
		return true
	}
	return false
}

// DefaultDeliveryAddress is used when neither the order nor the crop carries an address.
const DefaultDeliveryAddress = "Address not specified"

// Coordinates holds a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Location couples a human-readable address with its coordinates.
type Location struct {
	Address     string
	Coordinates Coordinates
}

// Crop is a farmer-published offer of a quantity of produce at a unit price.
type Crop struct {
	ID             string
	FarmerID       string
	FarmerName     string
	CropName       string
	Variety        string
	Quantity       float64
	Unit           string
	PricePerUnit   float64
	IsOrganic      bool
	HarvestDate    time.Time
	ExpiryDate     time.Time
	Location       Location
	Images         []string
	Description    string
	Certifications []string
	Status         CropStatus
	SoldOutAt      *time.Time
	SoldToOrderID  string
	// RunAfter is the persisted deadline after which the removal sweep deletes the listing.
	RunAfter  *time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identifiable reports whether the identifying fields required to place an order are populated.
func (c Crop) Identifiable() bool {
	return c.ID != "" && c.FarmerID != "" && c.CropName != "" && c.FarmerName != ""
}

// RemovalDue reports whether the listing is sold out and its removal deadline has passed.
func (c Crop) RemovalDue(now time.Time) bool {
	if c.Status != CropStatusSoldOut || c.RunAfter == nil {
		return false
	}
	return !now.Before(*c.RunAfter)
}
