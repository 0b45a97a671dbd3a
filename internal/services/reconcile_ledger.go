package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cinema-booking/internal/status"

	"github.com/redis/go-redis/v9"
)

const DefaultLedgerKey = "reconciliation:pending"

// ReconciliationRecord is what an operator needs to settle a payment the
// chain took and the backend never recorded.
type ReconciliationRecord struct {
	status.ReconciliationError
	Error      string    `json:"error"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ReconciliationLedger keeps ReconciliationRecords in a redis list, newest
// first.
type ReconciliationLedger struct {
	redis redis.Cmdable
	key   string
	now   func() time.Time
}

func NewReconciliationLedger(redisClient redis.Cmdable, key string) *ReconciliationLedger {
	if key == "" {
		key = DefaultLedgerKey
	}
	return &ReconciliationLedger{redis: redisClient, key: key, now: time.Now}
}

func (l *ReconciliationLedger) Key() string { return l.key }

func (l *ReconciliationLedger) Record(ctx context.Context, rec *status.ReconciliationError) error {
	entry := ReconciliationRecord{
		ReconciliationError: *rec,
		RecordedAt:          l.now().UTC(),
	}
	if rec.Cause != nil {
		entry.Error = rec.Cause.Error()
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("Record: json.Marshal: %w", err)
	}
	if err := l.redis.LPush(ctx, l.key, string(b)).Err(); err != nil {
		return fmt.Errorf("Record: lpush %s: %w", l.key, err)
	}
	return nil
}

// Pending returns up to limit records, newest first.
func (l *ReconciliationLedger) Pending(ctx context.Context, limit int64) ([]ReconciliationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	raw, err := l.redis.LRange(ctx, l.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("Pending: lrange %s: %w", l.key, err)
	}

	out := make([]ReconciliationRecord, 0, len(raw))
	for _, s := range raw {
		var r ReconciliationRecord
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("Pending: json.Unmarshal: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
