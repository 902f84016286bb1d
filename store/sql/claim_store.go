package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	ClaimStatusProcessing = "processing"
	ClaimStatusRetryReady = "retry_ready"
	ClaimStatusComplete   = "complete"

	defaultClaimLease = 10 * time.Minute
)

// DeliveryClaimStore is the shared-database idempotency store for webhook
// deliveries, so retries are deduped across processes. It follows the same
// processing -> complete | retry_ready lifecycle as the in-memory store.
type DeliveryClaimStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewDeliveryClaimStore(db *bun.DB) (*DeliveryClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DeliveryClaimStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *DeliveryClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: claim key is required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	var claimID string
	var accepted bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		record, err := findClaimTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &deliveryClaimRecord{
				ID:             uuid.NewString(),
				ClaimKey:       key,
				ClaimID:        newClaimID(),
				Status:         ClaimStatusProcessing,
				Attempts:       1,
				LeaseMillis:    lease.Milliseconds(),
				LeaseExpiresAt: timePointer(now.Add(lease)),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return nil
				}
				return insertErr
			}
			claimID, accepted = record.ClaimID, true
			return nil
		}

		if claimHeld(record, now) {
			return nil
		}
		record.ClaimID = newClaimID()
		record.Status = ClaimStatusProcessing
		record.Attempts++
		record.LeaseMillis = lease.Milliseconds()
		record.LeaseExpiresAt = timePointer(now.Add(lease))
		record.RetryAt = nil
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		claimID, accepted = record.ClaimID, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return claimID, accepted, nil
}

// Complete keeps the key claimed for another lease so retries inside the
// window are acknowledged as duplicates.
func (s *DeliveryClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &deliveryClaimRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		if record.Status != ClaimStatusProcessing {
			return nil
		}
		lease := time.Duration(record.LeaseMillis) * time.Millisecond
		if lease <= 0 {
			lease = defaultClaimLease
		}
		now := s.now()
		_, err = tx.NewUpdate().
			Model((*deliveryClaimRecord)(nil)).
			Set("status = ?", ClaimStatusComplete).
			Set("lease_expires_at = ?", now.Add(lease)).
			Set("retry_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func (s *DeliveryClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := s.now()
	if retryAt.IsZero() {
		retryAt = now
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryClaimRecord)(nil)).
		Set("status = ?", ClaimStatusRetryReady).
		Set("retry_at = ?", retryAt.UTC()).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", ClaimStatusProcessing).
		Exec(ctx)
	return err
}

func claimHeld(record *deliveryClaimRecord, now time.Time) bool {
	switch record.Status {
	case ClaimStatusComplete, ClaimStatusProcessing:
		return record.LeaseExpiresAt != nil && now.Before(*record.LeaseExpiresAt)
	case ClaimStatusRetryReady:
		return record.RetryAt != nil && now.Before(*record.RetryAt)
	default:
		return false
	}
}

func findClaimTx(ctx context.Context, tx bun.Tx, key string) (*deliveryClaimRecord, error) {
	record := &deliveryClaimRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.claim_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func newClaimID() string {
	return "claim_" + uuid.NewString()
}
