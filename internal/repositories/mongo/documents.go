package mongo

import (
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

type locationDocument struct {
	Address     string `bson:"address"`
	Coordinates struct {
		Lat float64 `bson:"lat"`
		Lng float64 `bson:"lng"`
	} `bson:"coordinates"`
}

func newLocationDocument(loc domain.Location) locationDocument {
	var doc locationDocument
	doc.Address = loc.Address
	doc.Coordinates.Lat = loc.Coordinates.Lat
	doc.Coordinates.Lng = loc.Coordinates.Lng
	return doc
}

func (d locationDocument) toDomain() domain.Location {
	return domain.Location{
		Address:     d.Address,
		Coordinates: domain.Coordinates{Lat: d.Coordinates.Lat, Lng: d.Coordinates.Lng},
	}
}

type cropDocument struct {
	ID             string           `bson:"_id"`
	FarmerID       string           `bson:"farmerId"`
	FarmerName     string           `bson:"farmerName"`
	CropName       string           `bson:"cropName"`
	Variety        string           `bson:"variety"`
	Quantity       float64          `bson:"quantity"`
	Unit           string           `bson:"unit"`
	PricePerUnit   float64          `bson:"pricePerUnit"`
	IsOrganic      bool             `bson:"isOrganic"`
	HarvestDate    time.Time        `bson:"harvestDate"`
	ExpiryDate     time.Time        `bson:"expiryDate"`
	Location       locationDocument `bson:"location"`
	Images         []string         `bson:"images,omitempty"`
	Description    string           `bson:"description"`
	Certifications []string         `bson:"certifications,omitempty"`
	Status         string           `bson:"status"`
	SoldOutAt      *time.Time       `bson:"soldOutAt,omitempty"`
	SoldToOrderID  string           `bson:"soldToOrderId,omitempty"`
	RunAfter       *time.Time       `bson:"runAfter,omitempty"`
	DeletedAt      *time.Time       `bson:"deletedAt,omitempty"`
	CreatedAt      time.Time        `bson:"createdAt"`
	UpdatedAt      time.Time        `bson:"updatedAt"`
}

func newCropDocument(c domain.Crop) cropDocument {
	return cropDocument{
		ID:             c.ID,
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

func (d cropDocument) toDomain() domain.Crop {
	return domain.Crop{
		ID:             d.ID,
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
	ID           string           `bson:"_id"`
	BuyerID      string           `bson:"buyerId"`
	BuyerName    string           `bson:"buyerName"`
	FarmerID     string           `bson:"farmerId"`
	FarmerName   string           `bson:"farmerName"`
	CropID       string           `bson:"cropId"`
	CropName     string           `bson:"cropName"`
	Variety      string           `bson:"variety,omitempty"`
	Quantity     float64          `bson:"quantity"`
	Unit         string           `bson:"unit"`
	PricePerUnit float64          `bson:"pricePerUnit"`
	TotalAmount  float64          `bson:"totalAmount"`
	Status       string           `bson:"status"`
	OrderDate    time.Time        `bson:"orderDate"`
	DeliveryDate *time.Time       `bson:"deliveryDate,omitempty"`
	Location     locationDocument `bson:"location"`
	Notes        string           `bson:"notes,omitempty"`
	CreatedAt    time.Time        `bson:"createdAt"`
	UpdatedAt    time.Time        `bson:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	return orderDocument{
		ID:           o.ID,
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

func (d orderDocument) toDomain() domain.Order {
	return domain.Order{
		ID:           d.ID,
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

type notificationDocument struct {
	ID      string `bson:"_id"`
	UserID  string `bson:"userId"`
	Type    string `bson:"type"`
	Title   string `bson:"title"`
	Message string `bson:"message"`
	Data    struct {
		OrderID    string   `bson:"orderId,omitempty"`
		ContractID string   `bson:"contractId,omitempty"`
		ChatRoomID string   `bson:"chatRoomId,omitempty"`
		BuyerID    string   `bson:"buyerId,omitempty"`
		BuyerName  string   `bson:"buyerName,omitempty"`
		FarmerID   string   `bson:"farmerId,omitempty"`
		FarmerName string   `bson:"farmerName,omitempty"`
		CropID     string   `bson:"cropId,omitempty"`
		CropName   string   `bson:"cropName,omitempty"`
		Amount     *float64 `bson:"amount,omitempty"`
	} `bson:"data"`
	IsRead    bool      `bson:"isRead"`
	CreatedAt time.Time `bson:"createdAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	doc := notificationDocument{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
	doc.Data.OrderID = n.Data.OrderID
	doc.Data.ContractID = n.Data.ContractID
	doc.Data.ChatRoomID = n.Data.ChatRoomID
	doc.Data.BuyerID = n.Data.BuyerID
	doc.Data.BuyerName = n.Data.BuyerName
	doc.Data.FarmerID = n.Data.FarmerID
	doc.Data.FarmerName = n.Data.FarmerName
	doc.Data.CropID = n.Data.CropID
	doc.Data.CropName = n.Data.CropName
	doc.Data.Amount = n.Data.Amount
	return doc
}

func (d notificationDocument) toDomain() domain.Notification {
	return domain.Notification{
		ID:      d.ID,
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
