package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/store"
)

var (
	ErrNoCredentials        = errors.New("gateway account has no active credentials")
	ErrAuthorisationTimeout = errors.New("authorisation timed out")
	ErrInvalidRefundAmount  = errors.New("refund amount exceeds refundable balance")
	ErrRefundNotFound       = errors.New("refund not found")
	ErrIllegalRefundState   = errors.New("illegal refund transition")
)

// Store is the persistence the charge service needs. Updates are
// version-checked and return store.ErrConflict when the row moved on.
type Store interface {
	FindCharge(ctx context.Context, externalID string) (*domain.Charge, error)
	UpdateCharge(ctx context.Context, charge *domain.Charge, reason string) error
	RecordHistoricTransition(ctx context.Context, charge *domain.Charge, target domain.ChargeStatus, reason string) error
	FindAccount(ctx context.Context, id int64) (*domain.GatewayAccount, error)
	CreateRefund(ctx context.Context, refund *domain.Refund) error
	RefundedAmount(ctx context.Context, chargeExternalID string) (int64, error)
	FindRefundByReference(ctx context.Context, chargeExternalID, reference string) (*domain.Refund, error)
	UpdateRefund(ctx context.Context, refund *domain.Refund) error
}

// CaptureEnqueuer schedules a capture attempt for an approved charge.
type CaptureEnqueuer interface {
	Enqueue(ctx context.Context, chargeExternalID string) error
}

// Config tunes the charge service.
type Config struct {
	// AuthorisationTimeout bounds how long a caller waits for an authorisation.
	AuthorisationTimeout time.Duration
	// MaxConflictRetries bounds re-reads after an optimistic version conflict.
	MaxConflictRetries int
}

// ChargeService drives charges through the gateways and the state machine.
type ChargeService struct {
	store     Store
	providers *gateway.Registry
	captures  CaptureEnqueuer
	cfg       Config
	logger    *zap.Logger
}

func NewChargeService(s Store, providers *gateway.Registry, captures CaptureEnqueuer, cfg Config, logger *zap.Logger) *ChargeService {
	if cfg.AuthorisationTimeout == 0 {
		cfg.AuthorisationTimeout = 20 * time.Second
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = 3
	}
	return &ChargeService{
		store:     s,
		providers: providers,
		captures:  captures,
		cfg:       cfg,
		logger:    logger,
	}
}

// Transition moves charge to target. Re-applying the current status is a no-op.
// A version conflict re-reads the charge and re-validates the edge. Historic
// charges are recorded in the event history without touching the live row.
func (s *ChargeService) Transition(ctx context.Context, charge *domain.Charge, target domain.ChargeStatus, reason string) error {
	for attempt := 0; ; attempt++ {
		if charge.Status == target {
			return nil
		}
		if err := charge.CanTransitionTo(target); err != nil {
			return err
		}

		if charge.Historic {
			if err := s.store.RecordHistoricTransition(ctx, charge, target, reason); err != nil {
				return fmt.Errorf("record historic transition: %w", err)
			}
			charge.Status = target
			return nil
		}

		next := *charge
		next.Status = target
		err := s.store.UpdateCharge(ctx, &next, reason)
		if err == nil {
			from := charge.Status
			*charge = next
			s.logger.Info("charge transitioned",
				zap.String("charge_id", charge.ExternalID),
				zap.String("from", string(from)),
				zap.String("to", string(target)),
				zap.String("reason", reason),
			)
			return nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= s.cfg.MaxConflictRetries {
			return fmt.Errorf("update charge %s: %w", charge.ExternalID, err)
		}

		fresh, err := s.store.FindCharge(ctx, charge.ExternalID)
		if err != nil {
			return fmt.Errorf("reload charge %s: %w", charge.ExternalID, err)
		}
		*charge = *fresh
	}
}

// TransitionRefund applies a notification-driven refund status change to the
// refund the gateway reference identifies.
func (s *ChargeService) TransitionRefund(ctx context.Context, gatewayName string, target domain.RefundStatus, _ *domain.GatewayAccount, reference, transactionID string, charge *domain.Charge) error {
	for attempt := 0; ; attempt++ {
		refund, err := s.store.FindRefundByReference(ctx, charge.ExternalID, reference)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s reference %q on transaction %s", ErrRefundNotFound, gatewayName, reference, transactionID)
		}
		if err != nil {
			return fmt.Errorf("find refund: %w", err)
		}
		if refund.Status == target {
			return nil
		}
		if !refund.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: refund %s %s -> %s", ErrIllegalRefundState, refund.ExternalID, refund.Status, target)
		}

		from := refund.Status
		refund.Status = target
		err = s.store.UpdateRefund(ctx, refund)
		if err == nil {
			s.logger.Info("refund transitioned",
				zap.String("charge_id", charge.ExternalID),
				zap.String("refund_id", refund.ExternalID),
				zap.String("from", string(from)),
				zap.String("to", string(target)),
			)
			return nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= s.cfg.MaxConflictRetries {
			return fmt.Errorf("update refund %s: %w", refund.ExternalID, err)
		}
	}
}

// loadContext resolves everything a gateway call for chargeID needs.
func (s *ChargeService) loadContext(ctx context.Context, chargeID string) (*domain.Charge, *domain.GatewayAccount, domain.Credentials, gateway.PaymentProvider, error) {
	charge, err := s.store.FindCharge(ctx, chargeID)
	if err != nil {
		return nil, nil, domain.Credentials{}, nil, err
	}
	account, err := s.store.FindAccount(ctx, charge.GatewayAccountID)
	if err != nil {
		return nil, nil, domain.Credentials{}, nil, fmt.Errorf("load gateway account %d: %w", charge.GatewayAccountID, err)
	}
	creds, ok := account.ActiveCredentials(charge.PaymentProvider)
	if !ok {
		return nil, nil, domain.Credentials{}, nil, ErrNoCredentials
	}
	provider, err := s.providers.Provider(charge.PaymentProvider)
	if err != nil {
		return nil, nil, domain.Credentials{}, nil, err
	}
	return charge, account, creds.Credentials, provider, nil
}

func operationFor(charge *domain.Charge, account *domain.GatewayAccount, creds domain.Credentials) gateway.OperationRequest {
	return gateway.OperationRequest{
		ChargeExternalID:  charge.ExternalID,
		TransactionID:     charge.GatewayTransactionID,
		ProviderSessionID: charge.ProviderSessionID,
		Amount:            charge.Amount,
		Currency:          charge.Currency,
		Account:           account,
		Credentials:       creds,
	}
}

// failureStatus picks the authorisation state for a gateway call that did not
// produce a result.
func failureStatus(err error) domain.ChargeStatus {
	switch {
	case gateway.IsKind(err, gateway.KindConnection):
		return domain.StatusAuthorisationTimeout
	case gateway.IsKind(err, gateway.KindClientError):
		return domain.StatusAuthorisationRejected
	default:
		return domain.StatusAuthorisationUnexpectedError
	}
}
