package worker

import (
	"context"

	"github.com/mmcdole/offlined/internal/domain"
)

// SyncTag is the only deferred-retry tag the worker responds to.
const SyncTag = "background-sync"

const (
	notificationTitle       = "MindfulReplay"
	defaultNotificationBody = "New notification from MindfulReplay"
	notificationIcon        = "/icon-192.png"
)

// Sync runs deferred work for tag. There is no queued offline work yet, so
// the background-sync tag only records that it ran; other tags are ignored.
func (w *Worker) Sync(ctx context.Context, tag string) error {
	w.logger.Info("background sync triggered", "tag", tag)
	if tag != SyncTag {
		return nil
	}
	return w.doBackgroundSync(ctx)
}

func (w *Worker) doBackgroundSync(ctx context.Context) error {
	w.logger.Debug("performing background sync")
	return ctx.Err()
}

// Push shows a notification for an inbound push message. A nil payload means
// the message carried no data.
func (w *Worker) Push(ctx context.Context, payload []byte) (domain.Notification, error) {
	w.logger.Info("push notification received")

	body := defaultNotificationBody
	if payload != nil {
		body = string(payload)
	}

	n := domain.Notification{
		Title:   notificationTitle,
		Body:    body,
		Icon:    notificationIcon,
		Badge:   notificationIcon,
		Vibrate: []int{100, 50, 100},
		Data: domain.NotificationData{
			DateOfArrival: w.now().UTC(),
			PrimaryKey:    "1",
		},
	}
	return n, w.notifier.ShowNotification(ctx, n)
}

// NotificationClick closes the clicked notification and opens the app root.
func (w *Worker) NotificationClick(ctx context.Context) error {
	w.logger.Info("notification click received")
	return w.notifier.OpenWindow(ctx, "/")
}

// discardNotifier is used when no client surface is attached.
type discardNotifier struct{}

func (discardNotifier) ShowNotification(context.Context, domain.Notification) error { return nil }
func (discardNotifier) OpenWindow(context.Context, string) error                   { return nil }
