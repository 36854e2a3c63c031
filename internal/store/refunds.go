package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

func (s *Store) CreateRefund(ctx context.Context, r *domain.Refund) error {
	return s.Db.QueryRow(ctx,
		`INSERT INTO refunds (external_id, charge_external_id, amount, status, gateway_transaction_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING version, created_at`,
		r.ExternalID, r.ChargeExternalID, r.Amount, r.Status, r.GatewayTransactionID,
	).Scan(&r.Version, &r.CreatedAt)
}

// RefundedAmount sums refunds on a charge that have not failed.
func (s *Store) RefundedAmount(ctx context.Context, chargeExternalID string) (int64, error) {
	var total int64
	err := s.Db.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE charge_external_id = $1 AND status <> $2",
		chargeExternalID, domain.RefundError,
	).Scan(&total)
	return total, err
}

// FindRefundByReference finds the refund a gateway reference identifies.
func (s *Store) FindRefundByReference(ctx context.Context, chargeExternalID, reference string) (*domain.Refund, error) {
	var r domain.Refund
	err := s.Db.QueryRow(ctx,
		`SELECT external_id, charge_external_id, amount, status, gateway_transaction_id, version, created_at
		 FROM refunds WHERE charge_external_id = $1 AND (gateway_transaction_id = $2 OR external_id = $2)`,
		chargeExternalID, reference,
	).Scan(&r.ExternalID, &r.ChargeExternalID, &r.Amount, &r.Status, &r.GatewayTransactionID, &r.Version, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find refund: %w", err)
	}
	return &r, nil
}

// UpdateRefund writes r if its version is current and advances r.Version.
func (s *Store) UpdateRefund(ctx context.Context, r *domain.Refund) error {
	tag, err := s.Db.Exec(ctx,
		`UPDATE refunds SET status = $1, gateway_transaction_id = $2, version = version + 1
		 WHERE external_id = $3 AND version = $4`,
		r.Status, r.GatewayTransactionID, r.ExternalID, r.Version)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	r.Version++
	return nil
}
