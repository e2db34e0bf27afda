package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const (
	notificationIDPrefix      = "ntf_"
	defaultNotificationsLimit = 50
	maxNotificationsLimit     = 200

	channelInbox    = "inbox"
	channelRealtime = "realtime"
	channelPush     = "push"
)

// ErrNotificationInvalidInput signals a malformed notification request.
var ErrNotificationInvalidInput = errors.New("notification: invalid input")

// RealtimeChannel fans notifications out to live subscribers across instances.
type RealtimeChannel interface {
	PublishNotification(ctx context.Context, notification Notification) error
	Subscribe(ctx context.Context, userID string) (<-chan Notification, error)
}

// PushSender mirrors notifications to user devices.
type PushSender interface {
	SendPush(ctx context.Context, notification Notification) error
}

// NotificationMetrics records delivery outcomes per channel.
type NotificationMetrics interface {
	NotificationDelivered(channel string, notificationType string, err error)
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Realtime      RealtimeChannel
	Push          PushSender
	Metrics       NotificationMetrics
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	repo     repositories.NotificationRepository
	realtime RealtimeChannel
	push     PushSender
	metrics  NotificationMetrics
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewNotificationService wires the inbox store with its optional realtime and push mirrors.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
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
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopNotificationMetrics{}
	}
	return &notificationService{
		repo:     deps.Notifications,
		realtime: deps.Realtime,
		push:     deps.Push,
		metrics:  metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Notify persists the notification unread and then mirrors it best-effort.
func (s *notificationService) Notify(ctx context.Context, notification Notification) (Notification, error) {
	notification.UserID = strings.TrimSpace(notification.UserID)
	if notification.UserID == "" {
		return Notification{}, fmt.Errorf("%w: recipient is required", ErrNotificationInvalidInput)
	}
	if notification.Type == "" || strings.TrimSpace(notification.Title) == "" {
		return Notification{}, fmt.Errorf("%w: type and title are required", ErrNotificationInvalidInput)
	}

	notification.ID = notificationIDPrefix + s.newID()
	notification.IsRead = false
	notification.CreatedAt = s.clock()

	err := s.repo.Insert(ctx, notification)
	s.metrics.NotificationDelivered(channelInbox, string(notification.Type), err)
	if err != nil {
		return Notification{}, mapRepositoryError(err, ErrStoreUnavailable)
	}

	if s.realtime != nil {
		err := s.realtime.PublishNotification(ctx, notification)
		s.metrics.NotificationDelivered(channelRealtime, string(notification.Type), err)
		if err != nil {
			s.logMirrorFailure(ctx, channelRealtime, notification, err)
		}
	}
	if s.push != nil {
		err := s.push.SendPush(ctx, notification)
		s.metrics.NotificationDelivered(channelPush, string(notification.Type), err)
		if err != nil {
			s.logMirrorFailure(ctx, channelPush, notification, err)
		}
	}

	return notification, nil
}

func (s *notificationService) NotifyContractCreated(ctx context.Context, notice ContractCreatedNotice) (Notification, error) {
	buyer := strings.TrimSpace(notice.BuyerName)
	if buyer == "" {
		buyer = anonymousBuyerName
	}
	return s.Notify(ctx, Notification{
		UserID:  notice.FarmerID,
		Type:    domain.NotificationContractCreated,
		Title:   "New Contract Request",
		Message: fmt.Sprintf("%s has created a contract for %s", buyer, notice.CropType),
		Data: NotificationData{
			ContractID: notice.ContractID,
			BuyerID:    notice.BuyerID,
			BuyerName:  buyer,
			CropName:   notice.CropType,
		},
	})
}

func (s *notificationService) NotifyContractResponse(ctx context.Context, notice ContractResponseNotice) (Notification, error) {
	farmer := strings.TrimSpace(notice.FarmerName)
	if farmer == "" {
		farmer = "A farmer"
	}
	price := notice.PricePerUnit
	return s.Notify(ctx, Notification{
		UserID:  notice.BuyerID,
		Type:    domain.NotificationContractResponse,
		Title:   "Contract Response",
		Message: fmt.Sprintf("%s responded to your contract for %s at $%.2f per unit", farmer, notice.CropType, price),
		Data: NotificationData{
			ContractID: notice.ContractID,
			FarmerID:   notice.FarmerID,
			FarmerName: farmer,
			CropName:   notice.CropType,
			Amount:     &price,
		},
	})
}

func (s *notificationService) NotifyMessageReceived(ctx context.Context, notice MessageReceivedNotice) (Notification, error) {
	return s.Notify(ctx, Notification{
		UserID:  notice.RecipientID,
		Type:    domain.NotificationMessageReceived,
		Title:   "New Message",
		Message: fmt.Sprintf("You have a new message from %s", notice.SenderName),
		Data: NotificationData{
			ChatRoomID: notice.ChatRoomID,
		},
	})
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user identity is required", ErrUnauthenticated)
	}
	switch {
	case limit <= 0:
		limit = defaultNotificationsLimit
	case limit > maxNotificationsLimit:
		limit = maxNotificationsLimit
	}
	items, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, mapRepositoryError(err, ErrInvalidReference)
	}
	return items, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user identity is required", ErrUnauthenticated)
	}
	if err := s.repo.MarkRead(ctx, userID, strings.TrimSpace(notificationID)); err != nil {
		return mapRepositoryError(err, ErrInvalidReference)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user identity is required", ErrUnauthenticated)
	}
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return count, mapRepositoryError(err, ErrInvalidReference)
	}
	return count, nil
}

// Subscribe prefers the realtime channel so every instance sees every notification; the
// store watch serves single-instance deployments.
func (s *notificationService) Subscribe(ctx context.Context, userID string) (<-chan Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user identity is required", ErrUnauthenticated)
	}
	if s.realtime != nil {
		ch, err := s.realtime.Subscribe(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: realtime subscribe: %v", ErrStoreUnavailable, err)
		}
		return ch, nil
	}
	ch, err := s.repo.Subscribe(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, ErrInvalidReference)
	}
	return ch, nil
}

func (s *notificationService) logMirrorFailure(ctx context.Context, channel string, notification Notification, err error) {
	s.logger(ctx, "notification.mirror.failed", map[string]any{
		"channel":        channel,
		"notificationId": notification.ID,
		"userId":         notification.UserID,
		"type":           string(notification.Type),
		"error":          err.Error(),
	})
}

type noopNotificationMetrics struct{}

func (noopNotificationMetrics) NotificationDelivered(string, string, error) {}
