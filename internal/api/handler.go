package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payconnector/internal/domain"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/service"
	"github.com/punchamoorthee/payconnector/internal/store"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 20},
	}, []string{"method", "endpoint"})
)

const maxNotificationBytes = 1 << 20

// Charges is the subset of the charge service the API drives.
type Charges interface {
	Authorise(ctx context.Context, chargeID string, auth gateway.NormalisedAuthorisation) (*domain.Charge, error)
	Authorise3DS(ctx context.Context, chargeID string, result service.ThreeDSResult) (*domain.Charge, error)
	Capture(ctx context.Context, chargeID string) error
	Cancel(ctx context.Context, chargeID string, flow domain.CancelFlow) (*domain.Charge, error)
	Refund(ctx context.Context, chargeID string, amount int64) (*domain.Refund, error)
}

type ChargeStore interface {
	FindAccount(ctx context.Context, id int64) (*domain.GatewayAccount, error)
	CreateCharge(ctx context.Context, c *domain.Charge) error
	FindCharge(ctx context.Context, externalID string) (*domain.Charge, error)
}

type Notifications interface {
	Handle(ctx context.Context, gateway string, in notification.Inbound) (bool, error)
}

type Handler struct {
	charges       Charges
	store         ChargeStore
	notifications Notifications
	logger        *zap.Logger
}

func NewHandler(charges Charges, s ChargeStore, n Notifications, logger *zap.Logger) *Handler {
	return &Handler{charges: charges, store: s, notifications: n, logger: logger}
}

// Routes registers the connector endpoints on r.
func (h *Handler) Routes(r *mux.Router) {
	apiV1 := r.PathPrefix("/v1/api").Subrouter()
	apiV1.HandleFunc("/notifications/{gateway}", h.Notify).Methods("POST")
	apiV1.HandleFunc("/accounts/{accountId}/charges", h.CreateCharge).Methods("POST")
	apiV1.HandleFunc("/charges/{chargeId}", h.GetCharge).Methods("GET")
	apiV1.HandleFunc("/charges/{chargeId}/capture", h.CaptureCharge).Methods("POST")
	apiV1.HandleFunc("/charges/{chargeId}/cancel", h.CancelCharge).Methods("POST")
	apiV1.HandleFunc("/charges/{chargeId}/refunds", h.RefundCharge).Methods("POST")

	frontend := r.PathPrefix("/v1/frontend").Subrouter()
	frontend.HandleFunc("/charges/{chargeId}/cards", h.AuthoriseCharge).Methods("POST")
	frontend.HandleFunc("/charges/{chargeId}/3ds", h.Authorise3DS).Methods("POST")
}

// Notify accepts a gateway status notification. ePDQ and Worldpay expect the
// literal "[OK]" body; anything else makes them resend.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/notifications/{gateway}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	gw := mux.Vars(r)["gateway"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Unreadable body", "POST", endpoint)
		return
	}

	in := notification.Inbound{
		Payload:   body,
		Header:    r.Header,
		SourceIPs: sourceIPs(r),
	}
	if _, err := h.notifications.Handle(r.Context(), gw, in); err != nil {
		if errors.Is(err, notification.ErrForbidden) {
			h.respondError(w, http.StatusForbidden, "Forbidden", "POST", endpoint)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error(), "POST", endpoint)
		return
	}

	httpReqTotal.WithLabelValues("POST", endpoint, "200").Inc()
	if gw == "stripe" {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("[OK]"))
}

// sourceIPs lists the forwarded chain followed by the peer address.
func sourceIPs(r *http.Request) []string {
	ips := append([]string(nil), r.Header.Values("X-Forwarded-For")...)
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return append(ips, host)
}

type createChargeRequest struct {
	Amount            int64                    `json:"amount"`
	Currency          string                   `json:"currency"`
	Description       string                   `json:"description"`
	Reference         string                   `json:"reference"`
	Email             string                   `json:"email"`
	AuthorisationMode domain.AuthorisationMode `json:"authorisation_mode"`
	AgreementID       string                   `json:"agreement_id"`
}

func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/accounts/{accountId}/charges"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	accountID, err := strconv.ParseInt(mux.Vars(r)["accountId"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", "POST", endpoint)
		return
	}
	var req createChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be positive", "POST", endpoint)
		return
	}
	if req.AuthorisationMode == "" {
		req.AuthorisationMode = domain.AuthorisationModeWeb
	}

	account, err := h.store.FindAccount(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}

	charge := &domain.Charge{
		ExternalID:        uuid.NewString(),
		Amount:            req.Amount,
		Currency:          req.Currency,
		Description:       req.Description,
		Reference:         req.Reference,
		Email:             req.Email,
		Status:            domain.StatusCreated,
		GatewayAccountID:  account.ID,
		PaymentProvider:   account.PaymentProvider,
		AuthorisationMode: req.AuthorisationMode,
		AgreementID:       req.AgreementID,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.store.CreateCharge(r.Context(), charge); err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	w.Header().Set("Location", "/v1/api/charges/"+charge.ExternalID)
	h.respondJSON(w, http.StatusCreated, charge, "POST", endpoint)
}

func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/charges/{chargeId}"
	charge, err := h.store.FindCharge(r.Context(), mux.Vars(r)["chargeId"])
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, charge, "GET", endpoint)
}

type authoriseRequest struct {
	CardNumber                 string          `json:"card_number"`
	CVC                        string          `json:"cvc"`
	ExpiryDate                 string          `json:"expiry_date"`
	CardholderName             string          `json:"cardholder_name"`
	CardBrand                  string          `json:"card_brand"`
	Corporate                  bool            `json:"corporate_card"`
	Address                    *domain.Address `json:"address"`
	AcceptHeader               string          `json:"accept_header"`
	UserAgentHeader            string          `json:"user_agent_header"`
	IPAddress                  string          `json:"ip_address"`
	Email                      string          `json:"email"`
	DeviceDataCollectionResult string          `json:"worldpay_3ds_flex_ddc_result"`
	SaveCredential             bool            `json:"save_payment_instrument_to_agreement"`
}

func (h *Handler) AuthoriseCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/frontend/charges/{chargeId}/cards"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req authoriseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	month, year, ok := splitExpiry(req.ExpiryDate)
	if req.CardNumber == "" || !ok {
		h.respondError(w, http.StatusUnprocessableEntity, "Card number and MM/YY expiry date are required", "POST", endpoint)
		return
	}

	auth := gateway.NormalisedAuthorisation{
		Card: &gateway.CardData{
			Number:         req.CardNumber,
			CVC:            req.CVC,
			ExpiryMonth:    month,
			ExpiryYear:     year,
			CardholderName: req.CardholderName,
			CardBrand:      req.CardBrand,
			Corporate:      req.Corporate,
			Address:        req.Address,
		},
		AcceptHeader:               req.AcceptHeader,
		UserAgentHeader:            req.UserAgentHeader,
		AcceptLanguageHeader:       r.Header.Get("Accept-Language"),
		IPAddress:                  req.IPAddress,
		Email:                      req.Email,
		DeviceDataCollectionResult: req.DeviceDataCollectionResult,
		SaveCredential:             req.SaveCredential,
	}
	charge, err := h.charges.Authorise(r.Context(), mux.Vars(r)["chargeId"], auth)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, charge, "POST", endpoint)
}

type threeDSRequest struct {
	PaResponse string `json:"pa_response"`
	Completed  bool   `json:"completed"`
}

func (h *Handler) Authorise3DS(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/frontend/charges/{chargeId}/3ds"
	var req threeDSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	charge, err := h.charges.Authorise3DS(r.Context(), mux.Vars(r)["chargeId"], service.ThreeDSResult(req))
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, charge, "POST", endpoint)
}

func (h *Handler) CaptureCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/charges/{chargeId}/capture"
	if err := h.charges.Capture(r.Context(), mux.Vars(r)["chargeId"]); err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	httpReqTotal.WithLabelValues("POST", endpoint, "204").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// CancelCharge cancels on the payer's behalf unless the body names another flow.
func (h *Handler) CancelCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/charges/{chargeId}/cancel"
	var req struct {
		Flow domain.CancelFlow `json:"flow"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
			return
		}
	}
	switch req.Flow {
	case "":
		req.Flow = domain.FlowUserCancellation
	case domain.FlowUserCancellation, domain.FlowSystemCancellation, domain.FlowExpire:
	default:
		h.respondError(w, http.StatusUnprocessableEntity, "Unknown cancellation flow", "POST", endpoint)
		return
	}

	charge, err := h.charges.Cancel(r.Context(), mux.Vars(r)["chargeId"], req.Flow)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, charge, "POST", endpoint)
}

func (h *Handler) RefundCharge(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/v1/api/charges/{chargeId}/refunds"
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}
	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be positive", "POST", endpoint)
		return
	}
	refund, err := h.charges.Refund(r.Context(), mux.Vars(r)["chargeId"], req.Amount)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusAccepted, refund, "POST", endpoint)
}

// splitExpiry turns "MM/YY" into its parts.
func splitExpiry(s string) (string, string, bool) {
	if len(s) != 5 || s[2] != '/' {
		return "", "", false
	}
	return s[:2], s[3:], true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	var illegal *domain.IllegalStateError
	var gwErr *gateway.Error
	switch {
	case errors.As(err, &illegal):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not Found", method, endpoint)
	case errors.Is(err, store.ErrConflict):
		h.respondError(w, http.StatusConflict, "Charge was modified concurrently", method, endpoint)
	case errors.Is(err, service.ErrInvalidRefundAmount):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrAuthorisationTimeout):
		h.respondError(w, http.StatusGatewayTimeout, err.Error(), method, endpoint)
	case errors.As(err, &gwErr):
		// The failure status is already recorded against the charge.
		h.logger.Warn("gateway call failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, gwErr.Kind.String(), method, endpoint)
	case errors.Is(err, gateway.ErrUnknownGateway), errors.Is(err, service.ErrNoCredentials):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	default:
		h.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal error", method, endpoint)
	}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
