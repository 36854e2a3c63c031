// Package worldpay adapts the Worldpay XML paymentService API.
package worldpay

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/notification"
)

// Name is the gateway name used in accounts, charges and notification routes.
const Name = "worldpay"

const (
	xmlContentType    = "application/xml"
	machineCookieName = "machine"
)

const (
	eventAuthorised = "AUTHORISED"
	eventRefused    = "REFUSED"
	eventCancelled  = "CANCELLED"
)

var errEmptyReply = errors.New("paymentService has no reply")

// Config configures the Worldpay provider.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Provider implements gateway.PaymentProvider for Worldpay.
type Provider struct {
	cfg    Config
	client *gateway.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ gateway.PaymentProvider = (*Provider)(nil)

func New(cfg Config, logger *zap.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		client: gateway.NewClient(gateway.ClientConfig{Gateway: Name, Timeout: cfg.Timeout}, logger),
		logger: logger.With(zap.String("gateway", Name)),
		now:    time.Now,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SynchronousCapture() bool { return false }

func (p *Provider) NotificationParser() notification.Parser { return NotificationParser{} }

func (p *Provider) Authorise(ctx context.Context, creds domain.Credentials, req gateway.AuthorisationRequest) (*gateway.AuthorisationResult, error) {
	const op = "authorise"
	o, err := orderFor(req)
	if err != nil {
		return nil, &gateway.Error{Gateway: Name, Operation: op, Kind: gateway.KindClientError, Message: "cannot build request", Err: err}
	}
	resp, reply, err := p.send(ctx, op, creds, "", paymentService{MerchantCode: creds.MerchantID, Submit: &submit{Order: *o}})
	if err != nil {
		return nil, err
	}

	result := authorisationResult(reply, req.OrderCode)
	result.ProviderSessionID = machineCookie(resp.Cookies)

	p.logger.Info("authorisation response",
		zap.String("charge_id", req.ChargeExternalID),
		zap.String("order_code", req.OrderCode),
		zap.String("variant", string(req.Variant)),
		zap.String("last_event", result.GatewayStatus),
		zap.Bool("exemption_rejected", result.ExemptionRejected),
	)
	return result, nil
}

// Authorise3DS sends the payer's 3DS result. The machine cookie from the
// original authorisation must accompany it.
func (p *Provider) Authorise3DS(ctx context.Context, req gateway.ThreeDSCompletion) (*gateway.AuthorisationResult, error) {
	const op = "authorise_3ds"
	creds := req.Operation.Credentials
	o := threeDSResponseOrder(req, req.Operation.ChargeExternalID)
	resp, reply, err := p.send(ctx, op, creds, req.Operation.ProviderSessionID, paymentService{MerchantCode: creds.MerchantID, Submit: &submit{Order: *o}})
	if err != nil {
		return nil, err
	}
	result := authorisationResult(reply, req.Operation.TransactionID)
	if cookie := machineCookie(resp.Cookies); cookie != "" {
		result.ProviderSessionID = cookie
	} else {
		result.ProviderSessionID = req.Operation.ProviderSessionID
	}
	return result, nil
}

func (p *Provider) Capture(ctx context.Context, req gateway.OperationRequest) (*gateway.CaptureResult, error) {
	reply, err := p.modify(ctx, "capture", req.Credentials, captureModification(req, p.now().UTC()))
	if err != nil {
		return nil, err
	}
	if reply.Ok == nil || reply.Ok.CaptureReceived == nil {
		return nil, gateway.ParseError(Name, "capture", errors.New("no captureReceived in reply"))
	}
	return &gateway.CaptureResult{Reference: reply.Ok.CaptureReceived.OrderCode}, nil
}

func (p *Provider) Cancel(ctx context.Context, req gateway.OperationRequest) (*gateway.CancelResult, error) {
	reply, err := p.modify(ctx, "cancel", req.Credentials, cancelModification(req))
	if err != nil {
		return nil, err
	}
	if reply.Ok == nil || reply.Ok.CancelReceived == nil {
		return nil, gateway.ParseError(Name, "cancel", errors.New("no cancelReceived in reply"))
	}
	return &gateway.CancelResult{Reference: reply.Ok.CancelReceived.OrderCode}, nil
}

func (p *Provider) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	reply, err := p.modify(ctx, "refund", req.Operation.Credentials, refundModification(req))
	if err != nil {
		return nil, err
	}
	if reply.Ok == nil || reply.Ok.RefundReceived == nil {
		return nil, gateway.ParseError(Name, "refund", errors.New("no refundReceived in reply"))
	}
	// Worldpay echoes our reference back in refund journal notifications.
	return &gateway.RefundResult{Reference: req.RefundExternalID}, nil
}

func (p *Provider) modify(ctx context.Context, op string, creds domain.Credentials, mod orderModification) (*reply, error) {
	_, r, err := p.send(ctx, op, creds, "", paymentService{MerchantCode: creds.MerchantID, Modify: &modify{OrderModification: mod}})
	if err != nil {
		return nil, err
	}
	if r.Error != nil {
		return nil, gateway.ClientError(Name, op, r.Error.Code, strings.TrimSpace(r.Error.Message))
	}
	return r, nil
}

func (p *Provider) send(ctx context.Context, op string, creds domain.Credentials, sessionCookie string, ps paymentService) (*gateway.Response, *reply, error) {
	body, err := marshalEnvelope(ps)
	if err != nil {
		return nil, nil, &gateway.Error{Gateway: Name, Operation: op, Kind: gateway.KindClientError, Err: err}
	}
	req := gateway.Request{
		Operation:   op,
		URL:         p.cfg.URL,
		ContentType: xmlContentType,
		Body:        body,
		Username:    creds.Username,
		Password:    creds.Password,
	}
	if sessionCookie != "" {
		req.Cookies = []*http.Cookie{{Name: machineCookieName, Value: sessionCookie}}
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	r, err := parseReply(resp.Body)
	if err != nil {
		return nil, nil, gateway.ParseError(Name, op, err)
	}
	return resp, r, nil
}

func parseReply(body []byte) (*reply, error) {
	var ps paymentService
	if err := xml.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("decode paymentService: %w", err)
	}
	if ps.Reply == nil {
		return nil, errEmptyReply
	}
	return ps.Reply, nil
}

func authorisationResult(r *reply, orderCode string) *gateway.AuthorisationResult {
	result := &gateway.AuthorisationResult{TransactionID: orderCode}
	if r.Error != nil {
		result.Status = gateway.AuthorisationError
		result.ErrorCode = r.Error.Code
		result.ErrorMessage = strings.TrimSpace(r.Error.Message)
		return result
	}
	os := r.OrderStatus
	if os == nil {
		result.Status = gateway.AuthorisationError
		result.ErrorMessage = "reply has no orderStatus"
		return result
	}
	switch {
	case os.Error != nil:
		result.Status = gateway.AuthorisationError
		result.ErrorCode = os.Error.Code
		result.ErrorMessage = strings.TrimSpace(os.Error.Message)
	case os.RequestInfo != nil && os.RequestInfo.Request3DSecure != nil:
		r3 := os.RequestInfo.Request3DSecure
		result.Status = gateway.AuthorisationRequires3DS
		result.ThreeDS = &domain.ThreeDSRequiredDetails{IssuerURL: r3.IssuerURL, PaRequest: r3.PaRequest, Version: "1.0.2"}
	case os.ChallengeRequired != nil:
		d := os.ChallengeRequired.Details
		result.Status = gateway.AuthorisationRequires3DS
		result.ThreeDS = &domain.ThreeDSRequiredDetails{
			AcsURL:         d.AcsURL,
			ChallengeToken: d.Payload,
			TransactionID:  d.TransactionID3DS,
			Version:        d.ThreeDSVersion,
		}
	case os.Payment != nil:
		result.GatewayStatus = os.Payment.LastEvent
		switch os.Payment.LastEvent {
		case eventAuthorised:
			result.Status = gateway.AuthorisationSuccess
		case eventRefused:
			result.Status = gateway.AuthorisationRejected
			result.ExemptionRejected = os.ExemptionResponse != nil && os.ExemptionResponse.Result == "REJECTED"
			if rc := os.Payment.ISO8583ReturnCode; rc != nil {
				result.ErrorCode = rc.Code
				result.ErrorMessage = rc.Description
			}
		case eventCancelled:
			result.Status = gateway.AuthorisationCancelled
		default:
			result.Status = gateway.AuthorisationError
		}
	default:
		result.Status = gateway.AuthorisationError
		result.ErrorMessage = "unrecognised orderStatus"
	}
	return result
}

func machineCookie(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == machineCookieName {
			return c.Value
		}
	}
	return ""
}
