package cache

import (
	"context"
	"time"
)

// DeliveryCache keeps a short-lived record of recent deliveries keyed by
// task id.
type DeliveryCache interface {
	StoreSent(ctx context.Context, taskID, remoteMessageID string, sentAt time.Time) error
	LookupSent(ctx context.Context, taskID string) (remoteMessageID string, sentAt time.Time, ok bool, err error)
}
