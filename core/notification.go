package core

import (
	"encoding/json"
	"time"
)

type NotificationEvent struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	Type      string          `json:"type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// PushMessage is a message delivered by the push provider while the
// recipient is in the foreground.
type PushMessage struct {
	Token string            `json:"token,omitempty"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Channel string

const (
	ChannelPush     Channel = "push"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// NotificationRequest is what a producer publishes to ask for a
// notification to be created and delivered.
type NotificationRequest struct {
	UserID   string          `json:"user_id"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Type     string          `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Channels []Channel       `json:"channels,omitempty"`
}
