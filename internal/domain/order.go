package domain

import "time"

// Order is a buyer's commitment to purchase a quantity from a single crop listing.
type Order struct {
	ID           string
	BuyerID      string
	BuyerName    string
	FarmerID     string
	FarmerName   string
	CropID       string
	CropName     string
	Variety      string
	Quantity     float64
	Unit         string
	PricePerUnit float64
	// TotalAmount is fixed at creation and never recomputed.
	TotalAmount  float64
	Status       OrderStatus
	OrderDate    time.Time
	DeliveryDate *time.Time
	Location     Location
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderTotal multiplies quantity by unit price.
func OrderTotal(quantity, pricePerUnit float64) float64 {
	return quantity * pricePerUnit
}

// DuplicateGroup is a transient set of orders sharing a fingerprint, in scan order.
type DuplicateGroup struct {
	Key    string
	Orders []Order
}

// Redundant returns the number of records that would be removed from the group.
func (g DuplicateGroup) Redundant() int {
	if len(g.Orders) <= 1 {
		return 0
	}
	return len(g.Orders) - 1
}
