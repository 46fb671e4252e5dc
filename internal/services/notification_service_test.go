package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"marketplace-api/internal/apperror"
	"marketplace-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func TestEmitStoresAndPublishes(t *testing.T) {
	db := newTestDB(t)
	publisher := &capturePublisher{}
	service := NewNotificationService(db, publisher)
	ctx := context.Background()

	service.Emit(ctx,
		OfferReceived{SellerID: "seller", OfferID: "offer-1", Amount: 499},
		PaymentCompleted{UserID: "buyer", OrderID: "order-1", Amount: 499},
	)

	assert.Equal(t, []string{"notification.offer_received", "notification.payment_completed"}, publisher.keys)

	feed, err := service.List(ctx, "seller", false, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, string(NotificationOfferReceived), feed[0].Type)
	require.NotNil(t, feed[0].RelatedOfferID)
	assert.Equal(t, "offer-1", *feed[0].RelatedOfferID)
	assert.Nil(t, feed[0].RelatedOrderID)
	assert.Contains(t, feed[0].Message, "₹499")
}

func TestEmitSwallowsPublishFailure(t *testing.T) {
	db := newTestDB(t)
	service := NewNotificationService(db, &capturePublisher{err: errors.New("broker down")})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		service.Emit(ctx, General{UserID: "buyer", Title: "Hello", Message: "World"})
	})

	feed, err := service.List(ctx, "buyer", false, 10)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestMarkRead(t *testing.T) {
	db := newTestDB(t)
	service := NewNotificationService(db, nil)
	ctx := context.Background()

	service.Emit(ctx, AccountDelivered{BuyerID: "buyer", OrderID: "order-1"})
	feed, err := service.List(ctx, "buyer", true, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	err = service.MarkRead(ctx, feed[0].ID, "someone-else")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	require.NoError(t, service.MarkRead(ctx, feed[0].ID, "buyer"))

	unread, err := service.List(ctx, "buyer", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestNotificationPayloadShape(t *testing.T) {
	n := PurchaseRejected{BuyerID: "buyer", OrderID: "order-9", Reason: "sold offline"}.toNotification()

	body, err := json.Marshal(n)
	require.NoError(t, err)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "purchase_rejected", decoded.Type)
	assert.Equal(t, "Your purchase request was rejected: sold offline", decoded.Message)
	require.NotNil(t, decoded.RelatedOrderID)
	assert.Equal(t, "order-9", *decoded.RelatedOrderID)
}
