package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/metrics"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// jobsPerWorker sizes the queue so short bursts of callbacks never block.
const jobsPerWorker = 32

// WorkerPool pushes binding outcomes to subscribed browsers.
type WorkerPool struct {
	size    int
	jobs    chan int64
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size*jobsPerWorker),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     logger.WithComponent("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("Worker started")
	for {
		select {
		case bindingID := <-wp.jobs:
			wp.notifyBinding(ctx, bindingID)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("Worker shutting down")
			return
		}
	}
}

// Dispatch queues a binding for notification. It never blocks: when the
// queue is full the notification is dropped.
func (wp *WorkerPool) Dispatch(bindingID int64) {
	select {
	case wp.jobs <- bindingID:
	default:
		metrics.NotificationsSent.WithLabelValues("dropped").Inc()
		wp.log.Warn().Int64("binding_id", bindingID).Msg("Notification queue full, dropping")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// Message renders the push text for a finalized binding.
func Message(b *model.AddressBinding) string {
	switch b.SendStatus {
	case model.BindingBound:
		return fmt.Sprintf("IPv6地址 %s 已绑定成功！", b.IPv6Address)
	case model.BindingBindFailed:
		reason, _ := b.ErrorMessage()
		return fmt.Sprintf("IPv6地址 %s 绑定失败：%s", b.IPv6Address, reason)
	}
	return fmt.Sprintf("IPv6地址 %s 状态更新为 %s", b.IPv6Address, b.SendStatus)
}

func (wp *WorkerPool) notifyBinding(ctx context.Context, bindingID int64) {
	b, err := wp.store.GetBinding(ctx, bindingID)
	if err != nil {
		wp.log.Error().Err(err).Int64("binding_id", bindingID).Msg("Error fetching binding")
		return
	}

	subscriptions, err := wp.store.SubscriptionsForOwner(ctx, b.Owner)
	if err != nil {
		wp.log.Error().Err(err).Int64("binding_id", bindingID).Msg("Error fetching subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info().Int("subscriptions", len(subscriptions)).Int64("binding_id", bindingID).Msg("Sending notifications")
	message := []byte(Message(b))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, message)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("Error sending notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		metrics.NotificationsSent.WithLabelValues("expired").Inc()
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("Subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("Failed to delete expired subscription")
		}
		return
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
}
