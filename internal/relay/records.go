package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const outcomeKeyPrefix = "relay:outcome:"

// OutcomeRecord is the single flat record persisted per finalized call.
// Re-finalizing the same call overwrites the previous record.
type OutcomeRecord struct {
	CallSid           string         `json:"call_sid"`
	Answers           map[string]any `json:"answers"`
	Status            string         `json:"status"`
	TerminationReason string         `json:"termination_reason"`
	RecordedAt        time.Time      `json:"recorded_at"`
}

// RecordStore persists call outcome records in Redis.
type RecordStore struct {
	rdb *redis.Client
}

func NewRecordStore(rdb *redis.Client) *RecordStore {
	if rdb == nil {
		panic("relay: record store requires a redis client")
	}
	return &RecordStore{rdb: rdb}
}

// SaveOutcome writes the record, overwriting any existing one for the call.
func (s *RecordStore) SaveOutcome(ctx context.Context, rec OutcomeRecord) error {
	if rec.CallSid == "" {
		return errors.New("relay: outcome record requires a call SID")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("relay: marshal outcome record: %w", err)
	}
	if err := s.rdb.Set(ctx, outcomeKeyPrefix+rec.CallSid, data, 0).Err(); err != nil {
		return fmt.Errorf("relay: save outcome record: %w", err)
	}
	return nil
}

// GetOutcome loads the record for the call, returning nil when none exists.
func (s *RecordStore) GetOutcome(ctx context.Context, callSid string) (*OutcomeRecord, error) {
	data, err := s.rdb.Get(ctx, outcomeKeyPrefix+callSid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay: load outcome record: %w", err)
	}
	var rec OutcomeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("relay: decode outcome record: %w", err)
	}
	return &rec, nil
}
