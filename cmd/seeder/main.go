package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/config"
	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/store"
)

// Charges are seeded awaiting an ePDQ capture notification so the benchmark
// can drive them to CAPTURED.
const seededStatus = domain.StatusCaptureSubmitted

func main() {
	var (
		configPath string
		charges    int
		passphrase string
	)
	cmd := &cobra.Command{
		Use:   "seeder",
		Short: "Seed an ePDQ gateway account and charges for notification benchmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seed(cmd.Context(), configPath, charges, passphrase)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().IntVar(&charges, "charges", 1000, "Number of charges to seed")
	cmd.Flags().StringVar(&passphrase, "sha-out", "bench-passphrase", "SHA-OUT passphrase of the seeded account")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, configPath string, total int, passphrase string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	s, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	logger.Info("seeding database", zap.Int("charges", total))

	account := &domain.GatewayAccount{
		PaymentProvider: "epdq",
		Credentials: []domain.GatewayAccountCredentials{{
			ExternalID:      uuid.NewString(),
			PaymentProvider: "epdq",
			State:           domain.CredentialsActive,
			Credentials: domain.Credentials{
				MerchantID:       "benchpspid",
				Username:         "bench",
				Password:         "bench",
				SHAInPassphrase:  passphrase,
				SHAOutPassphrase: passphrase,
			},
		}},
	}
	if err := s.CreateAccount(ctx, account); err != nil {
		return err
	}

	// Bulk insert using CopyFrom. Transaction ids are bench-<n> so the
	// benchmark can address them without reading the table.
	rows := make([][]any, 0, total)
	now := time.Now()
	for i := 1; i <= total; i++ {
		rows = append(rows, []any{
			uuid.NewString(), int64(1000), string(seededStatus), account.ID, "epdq",
			fmt.Sprintf("bench-%d-%d", account.ID, i), now,
		})
	}
	copied, err := s.Db.CopyFrom(ctx,
		pgx.Identifier{"charges"},
		[]string{"external_id", "amount", "status", "gateway_account_id", "payment_provider", "gateway_transaction_id", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy charges: %w", err)
	}

	logger.Info("seeding complete",
		zap.Int64("gateway_account_id", account.ID),
		zap.Int64("charges", copied),
		zap.String("transaction_id_prefix", fmt.Sprintf("bench-%d-", account.ID)),
	)
	return nil
}
