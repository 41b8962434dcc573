package model

import "time"

// PointsEvent is published to Kafka when the sync loop observes a balance change.
type PointsEvent struct {
	ID           string    `json:"id"` // ULID
	CustomerCode string    `json:"customer_code"`
	Points       int64     `json:"points"`
	ObservedAt   time.Time `json:"observed_at"`
}
