package redisx

import (
	"fmt"
	"time"
)

const (
	// Order status read cache: order_status:{platform}:{external_id} -> {"status": "..."}
	keyOrderStatus = "order_status:%s:%s"

	// Dedup for event processing: dedup:{service}:{event_id}
	keyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func OrderStatusKey(platform, externalID string) string {
	return fmt.Sprintf(keyOrderStatus, platform, externalID)
}

func DedupKey(service, eventID string) string {
	return fmt.Sprintf(keyDedup, service, eventID)
}
