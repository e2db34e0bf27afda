package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/farmconnect/marketplace/internal/platform/httpx"
	"github.com/farmconnect/marketplace/internal/services"
)

const maxEventBodySize = 4 * 1024

type contractCreatedEvent struct {
	ContractID string `json:"contractId" validate:"required,max=128"`
	FarmerID   string `json:"farmerId" validate:"required,max=128"`
	BuyerID    string `json:"buyerId" validate:"max=128"`
	BuyerName  string `json:"buyerName" validate:"max=120"`
	CropType   string `json:"cropType" validate:"required,max=120"`
}

type contractRespondedEvent struct {
	ContractID   string  `json:"contractId" validate:"required,max=128"`
	BuyerID      string  `json:"buyerId" validate:"required,max=128"`
	FarmerID     string  `json:"farmerId" validate:"required,max=128"`
	FarmerName   string  `json:"farmerName" validate:"max=120"`
	CropType     string  `json:"cropType" validate:"required,max=120"`
	PricePerUnit float64 `json:"pricePerUnit" validate:"gt=0"`
}

type messageReceivedEvent struct {
	ChatRoomID  string `json:"chatRoomId" validate:"required,max=128"`
	RecipientID string `json:"recipientId" validate:"required,max=128"`
	SenderName  string `json:"senderName" validate:"required,max=120"`
}

// EventHandlers turns contract and chat events raised by other services into inbox
// notifications. They are mounted under /internal and share its OIDC guard.
type EventHandlers struct {
	notifications services.NotificationService
}

// NewEventHandlers constructs the internal event handlers.
func NewEventHandlers(notifications services.NotificationService) *EventHandlers {
	return &EventHandlers{notifications: notifications}
}

// Routes registers the event endpoints.
func (h *EventHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/events/contracts:created", h.contractCreated)
	r.Post("/events/contracts:responded", h.contractResponded)
	r.Post("/events/messages:received", h.messageReceived)
}

func (h *EventHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.notifications == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *EventHandlers) contractCreated(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var event contractCreatedEvent
	if !decodeBody(w, r, maxEventBodySize, &event) {
		return
	}
	n, err := h.notifications.NotifyContractCreated(r.Context(), services.ContractCreatedNotice{
		FarmerID:   strings.TrimSpace(event.FarmerID),
		BuyerID:    strings.TrimSpace(event.BuyerID),
		BuyerName:  strings.TrimSpace(event.BuyerName),
		ContractID: strings.TrimSpace(event.ContractID),
		CropType:   strings.TrimSpace(event.CropType),
	})
	writeNotificationResult(w, r, n, err)
}

func (h *EventHandlers) contractResponded(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var event contractRespondedEvent
	if !decodeBody(w, r, maxEventBodySize, &event) {
		return
	}
	n, err := h.notifications.NotifyContractResponse(r.Context(), services.ContractResponseNotice{
		BuyerID:      strings.TrimSpace(event.BuyerID),
		FarmerID:     strings.TrimSpace(event.FarmerID),
		FarmerName:   strings.TrimSpace(event.FarmerName),
		ContractID:   strings.TrimSpace(event.ContractID),
		CropType:     strings.TrimSpace(event.CropType),
		PricePerUnit: event.PricePerUnit,
	})
	writeNotificationResult(w, r, n, err)
}

func (h *EventHandlers) messageReceived(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var event messageReceivedEvent
	if !decodeBody(w, r, maxEventBodySize, &event) {
		return
	}
	n, err := h.notifications.NotifyMessageReceived(r.Context(), services.MessageReceivedNotice{
		RecipientID: strings.TrimSpace(event.RecipientID),
		SenderName:  strings.TrimSpace(event.SenderName),
		ChatRoomID:  strings.TrimSpace(event.ChatRoomID),
	})
	writeNotificationResult(w, r, n, err)
}

type eventAcceptedResponse struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	Type           string `json:"type"`
}

func writeNotificationResult(w http.ResponseWriter, r *http.Request, n services.Notification, err error) {
	if err != nil {
		httpx.WriteServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, eventAcceptedResponse{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
	})
}
