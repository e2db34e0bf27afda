package domain

import (
	"strconv"
	"strings"
)

// OrderFingerprint is the similarity key used to detect duplicate orders. It is
// comparable, so groups are keyed on the fields themselves rather than a rendering.
type OrderFingerprint struct {
	BuyerID     string
	FarmerID    string
	CropID      string
	Quantity    float64
	TotalAmount float64
	Status      OrderStatus
}

// FingerprintOf extracts the duplicate key of o.
func FingerprintOf(o Order) OrderFingerprint {
	return OrderFingerprint{
		BuyerID:     o.BuyerID,
		FarmerID:    o.FarmerID,
		CropID:      o.CropID,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
	}
}

// String renders buyerId_farmerId_cropId_quantity_totalAmount_status for reports and logs.
// Two fingerprints may render alike when ids contain underscores; compare the struct.
func (f OrderFingerprint) String() string {
	return strings.Join([]string{
		f.BuyerID,
		f.FarmerID,
		f.CropID,
		formatNumber(f.Quantity),
		formatNumber(f.TotalAmount),
		string(f.Status),
	}, "_")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
