package models

import "time"

// WebhookDelivery is an audit row for one accepted GitHub webhook delivery,
// keyed by the X-GitHub-Delivery header. It backs the dashboard's recent-
// deliveries view. The gateway writes it after dispatching and does not
// consult it before routing, so a redelivered event is dispatched again and
// only its duplicate audit insert fails.
type WebhookDelivery struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DeliveryID string `gorm:"size:64;uniqueIndex"`
	EventType  string `gorm:"size:32;index"`
	Repo       string `gorm:"size:160;index"`
	RoutedTo   string `gorm:"type:text"` // JSON list of worker names
	ReceivedAt time.Time `gorm:"index"`
}

// TableName pins the table name so it survives struct renames.
func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
