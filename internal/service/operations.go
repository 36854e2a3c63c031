package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
)

// Capture sends an approved charge for settlement. A charge that is no longer
// awaiting capture yields *domain.IllegalStateError. On gateway failure the
// charge returns to CAPTURE_APPROVED_RETRY and the gateway error is returned.
func (s *ChargeService) Capture(ctx context.Context, chargeID string) error {
	charge, account, creds, provider, err := s.loadContext(ctx, chargeID)
	if err != nil {
		return err
	}
	if !charge.Status.IsAwaitingCapture() {
		return &domain.IllegalStateError{ChargeID: charge.ExternalID, From: charge.Status, To: domain.StatusCaptureReady}
	}
	if err := s.Transition(ctx, charge, domain.StatusCaptureReady, "capture attempt"); err != nil {
		return err
	}

	result, err := provider.Capture(ctx, operationFor(charge, account, creds))
	if err != nil {
		if tErr := s.Transition(ctx, charge, domain.StatusCaptureApprovedRetry, "capture failed"); tErr != nil {
			return errors.Join(err, tErr)
		}
		return err
	}

	target := domain.StatusCaptureSubmitted
	if provider.SynchronousCapture() || result.Complete {
		target = domain.StatusCaptured
	}
	s.logger.Info("capture accepted",
		zap.String("charge_id", charge.ExternalID),
		zap.String("gateway", provider.Name()),
		zap.String("reference", result.Reference),
		zap.String("target", string(target)),
	)
	return s.Transition(ctx, charge, target, "capture accepted")
}

// MarkCaptureError records that capture was abandoned.
func (s *ChargeService) MarkCaptureError(ctx context.Context, chargeID string) error {
	charge, err := s.store.FindCharge(ctx, chargeID)
	if err != nil {
		return err
	}
	return s.Transition(ctx, charge, domain.StatusCaptureError, "capture retries exhausted")
}

// Cancel walks the flow's READY -> SUBMITTED -> terminal states. Charges that
// never reached the gateway are cancelled without a gateway call.
func (s *ChargeService) Cancel(ctx context.Context, chargeID string, flow domain.CancelFlow) (*domain.Charge, error) {
	charge, account, creds, provider, err := s.loadContext(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	reason := "cancel " + string(flow)

	switch charge.Status {
	case domain.StatusCreated, domain.StatusEnteringDetails, domain.StatusAuthorisation3DSRequired:
		return charge, s.Transition(ctx, charge, flow.Success(), reason)
	case domain.StatusAuthorisationSuccess:
	default:
		return charge, &domain.IllegalStateError{ChargeID: charge.ExternalID, From: charge.Status, To: flow.Ready()}
	}

	if err := s.Transition(ctx, charge, flow.Ready(), reason); err != nil {
		return charge, err
	}
	result, err := provider.Cancel(ctx, operationFor(charge, account, creds))
	if err != nil {
		if tErr := s.Transition(ctx, charge, flow.Failure(), reason+" failed"); tErr != nil {
			return charge, errors.Join(err, tErr)
		}
		return charge, err
	}

	target := flow.Submitted()
	if result.Complete {
		target = flow.Success()
	}
	return charge, s.Transition(ctx, charge, target, reason)
}

// Refund asks the gateway to return amount of a captured charge.
func (s *ChargeService) Refund(ctx context.Context, chargeID string, amount int64) (*domain.Refund, error) {
	charge, account, creds, provider, err := s.loadContext(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.Status != domain.StatusCaptured {
		return nil, &domain.IllegalStateError{ChargeID: charge.ExternalID, From: charge.Status}
	}

	refunded, err := s.store.RefundedAmount(ctx, charge.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("load refunded amount: %w", err)
	}
	if amount <= 0 || amount > charge.Amount-refunded {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInvalidRefundAmount, amount, charge.Amount-refunded)
	}

	refund := &domain.Refund{
		ExternalID:       uuid.NewString(),
		ChargeExternalID: charge.ExternalID,
		Amount:           amount,
		Status:           domain.RefundCreated,
	}
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	result, gwErr := provider.Refund(ctx, gateway.RefundRequest{
		Operation:        operationFor(charge, account, creds),
		RefundExternalID: refund.ExternalID,
		Amount:           amount,
	})
	if gwErr != nil {
		refund.Status = domain.RefundError
	} else {
		refund.GatewayTransactionID = result.Reference
		refund.Status = domain.RefundSubmitted
		if result.Complete {
			refund.Status = domain.RefundRefunded
		}
	}
	if err := s.store.UpdateRefund(ctx, refund); err != nil {
		return refund, errors.Join(gwErr, fmt.Errorf("update refund: %w", err))
	}
	return refund, gwErr
}
