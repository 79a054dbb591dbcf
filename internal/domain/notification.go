package domain

import "time"

// Notification records the fact that an event should be surfaced to a
// recipient. Delivery mechanics live outside the core.
type Notification struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	IsRead      bool              `json:"is_read"`
	Attributes  map[string]string `json:"attributes"`
	CreatedAt   time.Time         `json:"created_at"`
}
