package domain

import (
	"context"
	"time"
)

// Notification is a push notification shown to the user.
type Notification struct {
	Title   string           `json:"title"`
	Body    string           `json:"body"`
	Icon    string           `json:"icon"`
	Badge   string           `json:"badge"`
	Vibrate []int            `json:"vibrate"`
	Data    NotificationData `json:"data"`
}

// NotificationData is the payload attached to a notification.
type NotificationData struct {
	DateOfArrival time.Time `json:"dateOfArrival"`
	PrimaryKey    string    `json:"primaryKey"`
}

// ClientCommand instructs connected clients to do something, such as open a window.
type ClientCommand struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Notifier delivers notifications and client commands to connected pages.
type Notifier interface {
	ShowNotification(ctx context.Context, n Notification) error
	OpenWindow(ctx context.Context, url string) error
}
