package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"society-gate-backend/internal/model"
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

// Subscriptions is the part of the store the workers read and prune.
type Subscriptions interface {
	ListSubscriptions(ctx context.Context, residentID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, residentID string) error
}

// Job is a notice addressed to every device a resident registered.
type Job struct {
	ResidentID string `json:"-"`
	VisitorID  string `json:"visitorId,omitempty"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	subs    Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool. queueSize bounds the pending jobs.
func NewWorkerPool(size, queueSize int, subs Subscriptions, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queueSize),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	slog.Debug("push worker started", "worker", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.sendToResident(ctx, job)
		case <-ctx.Done():
			slog.Debug("push worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a job without blocking. It reports false when the queue is
// full and the job was dropped.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		slog.Warn("push queue full, dropping notification", "resident_id", job.ResidentID, "visitor_id", job.VisitorID)
		return false
	}
}

func (wp *WorkerPool) sendToResident(ctx context.Context, job Job) {
	subscriptions, err := wp.subs.ListSubscriptions(ctx, job.ResidentID)
	if err != nil {
		slog.Error("fetching push subscriptions", "resident_id", job.ResidentID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		slog.Error("encoding push payload", "error", err)
		return
	}

	slog.Info("sending push notifications", "resident_id", job.ResidentID, "count", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
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
		slog.Error("sending push notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.Info("push subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint, ""); err != nil {
			slog.Error("deleting expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
