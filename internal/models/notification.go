package models

import "time"

// Notification is the fire-and-forget payload published per applied event.
type Notification struct {
	Wallet    string     `json:"wallet"`
	Action    ActionKind `json:"action"`
	Pool      string     `json:"pool,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
