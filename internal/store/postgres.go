package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

//go:embed schema.sql
var schema string

// Store persists charges, refunds and gateway accounts in Postgres.
type Store struct {
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const chargeColumns = `external_id, amount, currency, description, reference, email, status,
	gateway_account_id, payment_provider, COALESCE(gateway_transaction_id, ''), provider_session_id,
	three_ds, authorisation_mode, agreement_id, payment_instrument, card_details, can_retry,
	historic, version, created_at`

func scanCharge(row pgx.Row) (*domain.Charge, error) {
	var c domain.Charge
	err := row.Scan(&c.ExternalID, &c.Amount, &c.Currency, &c.Description, &c.Reference, &c.Email, &c.Status,
		&c.GatewayAccountID, &c.PaymentProvider, &c.GatewayTransactionID, &c.ProviderSessionID,
		&c.ThreeDS, &c.AuthorisationMode, &c.AgreementID, &c.PaymentInstrument, &c.CardDetails, &c.CanRetry,
		&c.Historic, &c.Version, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCharge retrieves a charge by its external id.
func (s *Store) FindCharge(ctx context.Context, externalID string) (*domain.Charge, error) {
	return scanCharge(s.Db.QueryRow(ctx,
		"SELECT "+chargeColumns+" FROM charges WHERE external_id = $1", externalID))
}

// FindByProviderAndTransactionID resolves a notification to its charge.
func (s *Store) FindByProviderAndTransactionID(ctx context.Context, gateway, transactionID string) (*domain.Charge, error) {
	return scanCharge(s.Db.QueryRow(ctx,
		"SELECT "+chargeColumns+" FROM charges WHERE payment_provider = $1 AND gateway_transaction_id = $2",
		gateway, transactionID))
}

// CreateCharge inserts a new charge in its initial status.
func (s *Store) CreateCharge(ctx context.Context, c *domain.Charge) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO charges (external_id, amount, currency, description, reference, email, status,
			gateway_account_id, payment_provider, authorisation_mode, agreement_id, payment_instrument)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING version, created_at`,
		c.ExternalID, c.Amount, c.Currency, c.Description, c.Reference, c.Email, c.Status,
		c.GatewayAccountID, c.PaymentProvider, c.AuthorisationMode, c.AgreementID, c.PaymentInstrument,
	).Scan(&c.Version, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

// UpdateCharge writes c if the stored version still equals c.Version, and
// records a history event when the status changed. On success c.Version is
// advanced; a stale version yields ErrConflict.
func (s *Store) UpdateCharge(ctx context.Context, c *domain.Charge, reason string) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous domain.ChargeStatus
	err = tx.QueryRow(ctx,
		`UPDATE charges c SET
			status = $1,
			gateway_transaction_id = NULLIF($2, ''),
			provider_session_id = $3,
			three_ds = $4,
			card_details = $5,
			can_retry = $6,
			version = c.version + 1
		 FROM charges old
		 WHERE c.external_id = old.external_id AND c.external_id = $7 AND c.version = $8
		 RETURNING old.status`,
		c.Status, c.GatewayTransactionID, c.ProviderSessionID, c.ThreeDS, c.CardDetails, c.CanRetry,
		c.ExternalID, c.Version,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}

	if previous != c.Status {
		if _, err := tx.Exec(ctx,
			"INSERT INTO charge_events (charge_external_id, status, reason) VALUES ($1, $2, $3)",
			c.ExternalID, c.Status, reason,
		); err != nil {
			return fmt.Errorf("insert charge event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	c.Version++
	return nil
}

// RecordHistoricTransition records a status change for a charge whose live row
// has been expunged.
func (s *Store) RecordHistoricTransition(ctx context.Context, c *domain.Charge, target domain.ChargeStatus, reason string) error {
	_, err := s.Db.Exec(ctx,
		"INSERT INTO charge_events (charge_external_id, status, reason, historic) VALUES ($1, $2, $3, TRUE)",
		c.ExternalID, target, reason)
	return err
}

// ChargeEvents lists a charge's status history, oldest first.
func (s *Store) ChargeEvents(ctx context.Context, externalID string) ([]domain.ChargeStatus, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT status FROM charge_events WHERE charge_external_id = $1 ORDER BY id", externalID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[domain.ChargeStatus])
}
