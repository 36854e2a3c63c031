package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/payconnector/internal/domain"
)

// storedCredentials mirrors domain.Credentials including the secret fields the
// domain type keeps out of JSON responses.
type storedCredentials struct {
	MerchantID       string `json:"merchant_id,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	SHAInPassphrase  string `json:"sha_in_passphrase,omitempty"`
	SHAOutPassphrase string `json:"sha_out_passphrase,omitempty"`
	StripeAccountID  string `json:"stripe_account_id,omitempty"`
}

// FindAccount loads a gateway account with all of its credential sets.
func (s *Store) FindAccount(ctx context.Context, id int64) (*domain.GatewayAccount, error) {
	var a domain.GatewayAccount
	err := s.Db.QueryRow(ctx,
		`SELECT id, payment_provider, live, requires_3ds, integration_version_3ds, exemption_engine_enabled,
			corporate_exemptions_enabled, send_payer_email_to_gateway, send_payer_ip_address_to_gateway,
			send_reference_to_gateway
		 FROM gateway_accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.PaymentProvider, &a.Live, &a.Requires3DS, &a.IntegrationVersion3DS, &a.ExemptionEngineEnabled,
		&a.CorporateExemptionsEnabled, &a.SendPayerEmailToGateway, &a.SendPayerIPAddressToGateway,
		&a.SendReferenceToGateway)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load gateway account: %w", err)
	}

	rows, err := s.Db.Query(ctx,
		`SELECT external_id, payment_provider, state, credentials
		 FROM gateway_account_credentials WHERE gateway_account_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			gc    domain.GatewayAccountCredentials
			creds storedCredentials
		)
		if err := rows.Scan(&gc.ExternalID, &gc.PaymentProvider, &gc.State, &creds); err != nil {
			return nil, fmt.Errorf("scan credentials: %w", err)
		}
		gc.Credentials = domain.Credentials(creds)
		a.Credentials = append(a.Credentials, gc)
	}
	return &a, rows.Err()
}

// CreateAccount inserts a gateway account and its credential sets.
func (s *Store) CreateAccount(ctx context.Context, a *domain.GatewayAccount) error {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO gateway_accounts (payment_provider, live, requires_3ds, integration_version_3ds,
			exemption_engine_enabled, corporate_exemptions_enabled, send_payer_email_to_gateway,
			send_payer_ip_address_to_gateway, send_reference_to_gateway)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		a.PaymentProvider, a.Live, a.Requires3DS, a.IntegrationVersion3DS, a.ExemptionEngineEnabled,
		a.CorporateExemptionsEnabled, a.SendPayerEmailToGateway, a.SendPayerIPAddressToGateway,
		a.SendReferenceToGateway,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert gateway account: %w", err)
	}

	for _, gc := range a.Credentials {
		if _, err := tx.Exec(ctx,
			`INSERT INTO gateway_account_credentials (external_id, gateway_account_id, payment_provider, state, credentials)
			 VALUES ($1, $2, $3, $4, $5)`,
			gc.ExternalID, a.ID, gc.PaymentProvider, gc.State, storedCredentials(gc.Credentials),
		); err != nil {
			return fmt.Errorf("insert credentials: %w", err)
		}
	}
	return tx.Commit(ctx)
}
