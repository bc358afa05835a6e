package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/templui/paykit/internal/ctxkeys"
	"github.com/templui/paykit/internal/model"
	"github.com/templui/paykit/internal/service"
	"github.com/templui/paykit/internal/service/payment"
)

// maxWebhookBytes bounds webhook bodies read into memory.
const maxWebhookBytes = 1 << 20

type BillingHandler struct {
	billingService *service.BillingService
	webhookService *service.WebhookService
	validate       *validator.Validate
}

func NewBillingHandler(billingService *service.BillingService, webhookService *service.WebhookService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		webhookService: webhookService,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

type checkoutRequest struct {
	Plan       string `json:"plan" validate:"required"`
	Interval   string `json:"interval" validate:"omitempty,oneof=month year"`
	SuccessURL string `json:"successUrl" validate:"omitempty,uri"`
	CancelURL  string `json:"cancelUrl" validate:"omitempty,uri"`
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl" validate:"omitempty,uri"`
}

type cancelRequest struct {
	AtPeriodEnd *bool `json:"atPeriodEnd"`
}

func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.billingService.Checkout(r.Context(), user, service.CheckoutRequest{
		Plan:       req.Plan,
		Interval:   req.Interval,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	switch {
	case errors.Is(err, service.ErrUnknownPlan), errors.Is(err, service.ErrFreePlan):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, payment.ErrConfiguration):
		slog.Error("checkout misconfigured", "error", err, "user_id", user.ID, "plan", req.Plan, "provider", h.billingService.ProviderName())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		slog.Error("failed to create checkout", "error", err, "user_id", user.ID, "plan", req.Plan, "provider", h.billingService.ProviderName())
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	slog.Info("checkout created", "user_id", user.ID, "plan", req.Plan, "provider", h.billingService.ProviderName(), "session_id", res.SessionID)
	writeJSON(w, http.StatusOK, res)
}

func (h *BillingHandler) CustomerPortal(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req portalRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.billingService.Portal(r.Context(), user.ID, req.ReturnURL)
	if err != nil {
		var mismatch *service.ProviderMismatchError
		switch {
		case errors.Is(err, service.ErrNoCustomer):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &mismatch):
			writeError(w, http.StatusBadRequest, mismatch.Error())
		case errors.Is(err, payment.ErrNotFound):
			writeError(w, http.StatusNotFound, "Customer portal not available")
		default:
			slog.Error("failed to get customer portal", "error", err, "user_id", user.ID, "provider", h.billingService.ProviderName())
			writeError(w, http.StatusInternalServerError, "Failed to access customer portal")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": res.URL})
}

func (h *BillingHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	sub, err := h.billingService.Subscription(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to get subscription", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "Failed to load subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Subscription{"subscription": sub})
}

func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	atPeriodEnd := true
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}

	sub, err := h.billingService.Cancel(r.Context(), user.ID, atPeriodEnd)
	if err != nil {
		var mismatch *service.ProviderMismatchError
		switch {
		case errors.Is(err, service.ErrNoSubscription):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &mismatch), errors.Is(err, service.ErrSubscriptionCanceled):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, payment.ErrNotFound):
			writeError(w, http.StatusNotFound, "Subscription not found at provider")
		default:
			slog.Error("failed to cancel subscription", "error", err, "user_id", user.ID, "provider", h.billingService.ProviderName())
			writeError(w, http.StatusInternalServerError, "Failed to cancel subscription")
		}
		return
	}

	slog.Info("subscription canceled", "user_id", user.ID, "at_period_end", atPeriodEnd)
	writeJSON(w, http.StatusOK, map[string]*model.Subscription{"subscription": sub})
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read payload")
		return
	}
	defer func() {
		closeErr := r.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close request body", "error", closeErr)
		}
	}()

	outcome, err := h.webhookService.Handle(r.Context(), payload, r.Header)
	switch {
	case errors.Is(err, service.ErrMissingSignature):
		writeError(w, http.StatusBadRequest, "Missing signature")
		return
	case errors.Is(err, service.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	case errors.Is(err, service.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	case err != nil:
		slog.Error("failed to handle webhook", "error", err, "provider", h.billingService.ProviderName())
		writeError(w, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	if outcome.Event == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"processed": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// decode reads an optional JSON body into dst and validates it. It writes the
// error response and returns false on failure.
func (h *BillingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return false
		}
	}

	err := h.validate.Struct(dst)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "Invalid "+verrs[0].Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
