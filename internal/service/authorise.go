package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
)

// ThreeDSResult is what the frontend reports once the payer leaves the issuer.
type ThreeDSResult struct {
	PaResponse string
	Completed  bool
}

type authReply struct {
	result *gateway.AuthorisationResult
	err    error
}

// Authorise selects the request shape for the charge, sends it and applies
// the outcome. A reply slower than the configured timeout moves the charge to
// AUTHORISATION_TIMEOUT; the reply itself is discarded when it arrives.
func (s *ChargeService) Authorise(ctx context.Context, chargeID string, auth gateway.NormalisedAuthorisation) (*domain.Charge, error) {
	charge, account, creds, provider, err := s.loadContext(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if err := charge.CanTransitionTo(domain.StatusAuthorisationSubmitted); err != nil {
		return charge, err
	}

	auth.Charge = charge
	if auth.OrderCode == "" {
		auth.OrderCode = uuid.NewString()
	}
	if auth.SessionID == "" {
		auth.SessionID = charge.ExternalID
	}
	req, err := gateway.Select(auth, account)
	if err != nil {
		return charge, err
	}

	charge.GatewayTransactionID = auth.OrderCode
	if err := s.Transition(ctx, charge, domain.StatusAuthorisationSubmitted, "authorisation started"); err != nil {
		return charge, err
	}

	rep, timedOut := s.awaitAuthorisation(ctx, provider, creds, req)
	if timedOut {
		s.logger.Warn("authorisation timed out",
			zap.String("charge_id", charge.ExternalID),
			zap.String("gateway", provider.Name()),
			zap.Duration("timeout", s.cfg.AuthorisationTimeout),
		)
		if err := s.Transition(ctx, charge, domain.StatusAuthorisationTimeout, "authorisation timed out"); err != nil {
			return charge, err
		}
		return charge, ErrAuthorisationTimeout
	}
	return charge, s.applyAuthorisation(ctx, charge, rep)
}

// awaitAuthorisation runs the gateway call detached from the caller's
// cancellation and waits at most AuthorisationTimeout for it. Whichever side
// clears the relevance flag first owns the outcome.
func (s *ChargeService) awaitAuthorisation(ctx context.Context, provider gateway.PaymentProvider, creds domain.Credentials, req gateway.AuthorisationRequest) (authReply, bool) {
	var relevant atomic.Bool
	relevant.Store(true)
	replies := make(chan authReply, 1)

	callCtx := context.WithoutCancel(ctx)
	go func() {
		result, err := s.authoriseWithExemptionRetry(callCtx, provider, creds, req)
		if !relevant.CompareAndSwap(true, false) {
			s.logger.Info("discarding late authorisation reply",
				zap.String("charge_id", req.ChargeExternalID),
				zap.String("gateway", provider.Name()),
				zap.Error(err),
			)
			return
		}
		replies <- authReply{result: result, err: err}
	}()

	timer := time.NewTimer(s.cfg.AuthorisationTimeout)
	defer timer.Stop()

	select {
	case rep := <-replies:
		return rep, false
	case <-timer.C:
	case <-ctx.Done():
	}
	if relevant.CompareAndSwap(true, false) {
		return authReply{}, true
	}
	// The reply won the race; it is already on its way.
	return <-replies, false
}

func (s *ChargeService) authoriseWithExemptionRetry(ctx context.Context, provider gateway.PaymentProvider, creds domain.Credentials, req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error) {
	result, err := provider.Authorise(ctx, creds, req)
	if err != nil || !result.ExemptionRejected || req.Exemption == gateway.ExemptionNone {
		return result, err
	}
	s.logger.Info("exemption rejected, retrying without exemption",
		zap.String("charge_id", req.ChargeExternalID),
		zap.String("exemption", string(req.Exemption)),
	)
	return provider.Authorise(ctx, creds, req.WithoutExemption())
}

// Authorise3DS completes a charge waiting on a 3-D Secure challenge.
func (s *ChargeService) Authorise3DS(ctx context.Context, chargeID string, result ThreeDSResult) (*domain.Charge, error) {
	charge, account, creds, provider, err := s.loadContext(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.Status != domain.StatusAuthorisation3DSRequired {
		return charge, &domain.IllegalStateError{ChargeID: charge.ExternalID, From: charge.Status, To: domain.StatusAuthorisation3DSReady}
	}
	if err := s.Transition(ctx, charge, domain.StatusAuthorisation3DSReady, "3ds result received"); err != nil {
		return charge, err
	}

	res, err := provider.Authorise3DS(ctx, gateway.ThreeDSCompletion{
		Operation:  operationFor(charge, account, creds),
		PaResponse: result.PaResponse,
		Completed:  result.Completed,
	})
	rep := authReply{result: res, err: err}
	if err == nil && (res.Status == gateway.AuthorisationRequires3DS || res.Status == gateway.AuthorisationSubmitted) {
		// Still with the issuer; a notification will settle it.
		return charge, nil
	}
	return charge, s.applyAuthorisation(ctx, charge, rep)
}

// applyAuthorisation records a gateway reply against the charge. Gateway
// errors are returned after the failure state is recorded.
func (s *ChargeService) applyAuthorisation(ctx context.Context, charge *domain.Charge, rep authReply) error {
	if rep.err != nil {
		target := failureStatus(rep.err)
		if err := s.Transition(ctx, charge, target, "authorisation failed"); err != nil {
			return errors.Join(rep.err, err)
		}
		return rep.err
	}

	res := rep.result
	if res.TransactionID != "" {
		charge.GatewayTransactionID = res.TransactionID
	}
	if res.ProviderSessionID != "" {
		charge.ProviderSessionID = res.ProviderSessionID
	}
	if res.ThreeDS != nil {
		charge.ThreeDS = res.ThreeDS
	}

	target := res.Status.ChargeStatus()
	if charge.Status == target {
		if err := s.store.UpdateCharge(ctx, charge, "authorisation details"); err != nil {
			return fmt.Errorf("save authorisation details: %w", err)
		}
		return nil
	}
	if err := s.Transition(ctx, charge, target, "authorisation "+string(target)); err != nil {
		return err
	}
	if target != domain.StatusAuthorisationSuccess {
		return nil
	}
	return s.approveCapture(ctx, charge)
}

func (s *ChargeService) approveCapture(ctx context.Context, charge *domain.Charge) error {
	if err := s.Transition(ctx, charge, domain.StatusCaptureApproved, "capture approved"); err != nil {
		return err
	}
	if err := s.captures.Enqueue(ctx, charge.ExternalID); err != nil {
		s.logger.Error("failed to enqueue capture", zap.String("charge_id", charge.ExternalID), zap.Error(err))
	}
	return nil
}
