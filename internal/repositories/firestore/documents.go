package firestore

import (
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

type coordinatesDocument struct {
	Lat float64 `firestore:"lat"`
	Lng float64 `firestore:"lng"`
}

type locationDocument struct {
	Address     string              `firestore:"address"`
	Coordinates coordinatesDocument `firestore:"coordinates"`
}

func newLocationDocument(loc domain.Location) locationDocument {
	return locationDocument{
		Address:     loc.Address,
		Coordinates: coordinatesDocument{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng},
	}
}

func (d locationDocument) toDomain() domain.Location {
	return domain.Location{
		Address:     d.Address,
		Coordinates: domain.Coordinates{Lat: d.Coordinates.Lat, Lng: d.Coordinates.Lng},
	}
}

type cropDocument struct {
	FarmerID       string           `firestore:"farmerId"`
	FarmerName     string           `firestore:"farmerName"`
	CropName       string           `firestore:"cropName"`
	Variety        string           `firestore:"variety"`
	Quantity       float64          `firestore:"quantity"`
	Unit           string           `firestore:"unit"`
	PricePerUnit   float64          `firestore:"pricePerUnit"`
	IsOrganic      bool             `firestore:"isOrganic"`
	HarvestDate    time.Time        `firestore:"harvestDate"`
	ExpiryDate     time.Time        `firestore:"expiryDate"`
	Location       locationDocument `firestore:"location"`
	Images         []string         `firestore:"images"`
	Description    string           `firestore:"description"`
	Certifications []string         `firestore:"certifications"`
	Status         string           `firestore:"status"`
	SoldOutAt      *time.Time       `firestore:"soldOutAt"`
	SoldToOrderID  string           `firestore:"soldToOrderId,omitempty"`
	RunAfter       *time.Time       `firestore:"runAfter"`
	DeletedAt      *time.Time       `firestore:"deletedAt"`
	CreatedAt      time.Time        `firestore:"createdAt"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

func newCropDocument(c domain.Crop) cropDocument {
	return cropDocument{
		FarmerID:       c.FarmerID,
		FarmerName:     c.FarmerName,
		CropName:       c.CropName,
		Variety:        c.Variety,
		Quantity:       c.Quantity,
		Unit:           c.Unit,
		PricePerUnit:   c.PricePerUnit,
		IsOrganic:      c.IsOrganic,
		HarvestDate:    c.HarvestDate.UTC(),
		ExpiryDate:     c.ExpiryDate.UTC(),
		Location:       newLocationDocument(c.Location),
		Images:         c.Images,
		Description:    c.Description,
		Certifications: c.Certifications,
		Status:         string(c.Status),
		SoldOutAt:      c.SoldOutAt,
		SoldToOrderID:  c.SoldToOrderID,
		RunAfter:       c.RunAfter,
		DeletedAt:      c.DeletedAt,
		CreatedAt:      c.CreatedAt.UTC(),
		UpdatedAt:      c.UpdatedAt.UTC(),
	}
}

func (d cropDocument) toDomain(id string) domain.Crop {
	return domain.Crop{
		ID:             id,
		FarmerID:       d.FarmerID,
		FarmerName:     d.FarmerName,
		CropName:       d.CropName,
		Variety:        d.Variety,
		Quantity:       d.Quantity,
		Unit:           d.Unit,
		PricePerUnit:   d.PricePerUnit,
		IsOrganic:      d.IsOrganic,
		HarvestDate:    d.HarvestDate,
		ExpiryDate:     d.ExpiryDate,
		Location:       d.Location.toDomain(),
		Images:         d.Images,
		Description:    d.Description,
		Certifications: d.Certifications,
		Status:         domain.CropStatus(d.Status),
		SoldOutAt:      d.SoldOutAt,
		SoldToOrderID:  d.SoldToOrderID,
		RunAfter:       d.RunAfter,
		DeletedAt:      d.DeletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type orderDocument struct {
	BuyerID      string           `firestore:"buyerId"`
	BuyerName    string           `firestore:"buyerName"`
	FarmerID     string           `firestore:"farmerId"`
	FarmerName   string           `firestore:"farmerName"`
	CropID       string           `firestore:"cropId"`
	CropName     string           `firestore:"cropName"`
	Variety      string           `firestore:"variety,omitempty"`
	Quantity     float64          `firestore:"quantity"`
	Unit         string           `firestore:"unit"`
	PricePerUnit float64          `firestore:"pricePerUnit"`
	TotalAmount  float64          `firestore:"totalAmount"`
	Status       string           `firestore:"status"`
	OrderDate    time.Time        `firestore:"orderDate"`
	DeliveryDate *time.Time       `firestore:"deliveryDate"`
	Location     locationDocument `firestore:"location"`
	Notes        string           `firestore:"notes,omitempty"`
	CreatedAt    time.Time        `firestore:"createdAt"`
	UpdatedAt    time.Time        `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	return orderDocument{
		BuyerID:      o.BuyerID,
		BuyerName:    o.BuyerName,
		FarmerID:     o.FarmerID,
		FarmerName:   o.FarmerName,
		CropID:       o.CropID,
		CropName:     o.CropName,
		Variety:      o.Variety,
		Quantity:     o.Quantity,
		Unit:         o.Unit,
		PricePerUnit: o.PricePerUnit,
		TotalAmount:  o.TotalAmount,
		Status:       string(o.Status),
		OrderDate:    o.OrderDate.UTC(),
		DeliveryDate: o.DeliveryDate,
		Location:     newLocationDocument(o.Location),
		Notes:        o.Notes,
		CreatedAt:    o.CreatedAt.UTC(),
		UpdatedAt:    o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:           id,
		BuyerID:      d.BuyerID,
		BuyerName:    d.BuyerName,
		FarmerID:     d.FarmerID,
		FarmerName:   d.FarmerName,
		CropID:       d.CropID,
		CropName:     d.CropName,
		Variety:      d.Variety,
		Quantity:     d.Quantity,
		Unit:         d.Unit,
		PricePerUnit: d.PricePerUnit,
		TotalAmount:  d.TotalAmount,
		Status:       domain.OrderStatus(d.Status),
		OrderDate:    d.OrderDate,
		DeliveryDate: d.DeliveryDate,
		Location:     d.Location.toDomain(),
		Notes:        d.Notes,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type notificationDataDocument struct {
	OrderID    string   `firestore:"orderId,omitempty"`
	ContractID string   `firestore:"contractId,omitempty"`
	ChatRoomID string   `firestore:"chatRoomId,omitempty"`
	BuyerID    string   `firestore:"buyerId,omitempty"`
	BuyerName  string   `firestore:"buyerName,omitempty"`
	FarmerID   string   `firestore:"farmerId,omitempty"`
	FarmerName string   `firestore:"farmerName,omitempty"`
	CropID     string   `firestore:"cropId,omitempty"`
	CropName   string   `firestore:"cropName,omitempty"`
	Amount     *float64 `firestore:"amount,omitempty"`
}

type notificationDocument struct {
	UserID    string                   `firestore:"userId"`
	Type      string                   `firestore:"type"`
	Title     string                   `firestore:"title"`
	Message   string                   `firestore:"message"`
	Data      notificationDataDocument `firestore:"data"`
	IsRead    bool                     `firestore:"isRead"`
	CreatedAt time.Time                `firestore:"createdAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	return notificationDocument{
		UserID:  n.UserID,
		Type:    string(n.Type),
		Title:   n.Title,
		Message: n.Message,
		Data: notificationDataDocument{
			OrderID:    n.Data.OrderID,
			ContractID: n.Data.ContractID,
			ChatRoomID: n.Data.ChatRoomID,
			BuyerID:    n.Data.BuyerID,
			BuyerName:  n.Data.BuyerName,
			FarmerID:   n.Data.FarmerID,
			FarmerName: n.Data.FarmerName,
			CropID:     n.Data.CropID,
			CropName:   n.Data.CropName,
			Amount:     n.Data.Amount,
		},
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:      id,
		UserID:  d.UserID,
		Type:    domain.NotificationType(d.Type),
		Title:   d.Title,
		Message: d.Message,
		Data: domain.NotificationData{
			OrderID:    d.Data.OrderID,
			ContractID: d.Data.ContractID,
			ChatRoomID: d.Data.ChatRoomID,
			BuyerID:    d.Data.BuyerID,
			BuyerName:  d.Data.BuyerName,
			FarmerID:   d.Data.FarmerID,
			FarmerName: d.Data.FarmerName,
			CropID:     d.Data.CropID,
			CropName:   d.Data.CropName,
			Amount:     d.Data.Amount,
		},
		IsRead:    d.IsRead,
		CreatedAt: d.CreatedAt,
	}
}
