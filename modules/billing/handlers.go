package billing

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/examgate/handler"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/identity"
)

type handlers struct {
	service    *entitlement.Service
	reconciler *entitlement.Reconciler
	logger     *slog.Logger
}

type entitlementResponse struct {
	UserID        string              `json:"user_id"`
	EffectiveTier entitlement.Tier    `json:"effective_tier"`
	HasUsedTrial  bool                `json:"has_used_trial"`
	ActiveGrants  []entitlement.Grant `json:"active_grants"`
	History       []entitlement.Grant `json:"history"`
	UpdatedAt     *time.Time          `json:"updated_at,omitempty"`
}

func newEntitlementResponse(rec *entitlement.Record) entitlementResponse {
	resp := entitlementResponse{
		UserID:        rec.UserID,
		EffectiveTier: rec.EffectiveTier,
		HasUsedTrial:  rec.HasUsedTrial,
		ActiveGrants:  rec.ActiveGrants,
		History:       rec.History,
	}
	if resp.ActiveGrants == nil {
		resp.ActiveGrants = []entitlement.Grant{}
	}
	if resp.History == nil {
		resp.History = []entitlement.Grant{}
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = &rec.UpdatedAt
	}
	return resp
}

// principal returns the authenticated user. The identity middleware runs
// before every handler that calls it.
func principal(ctx handler.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Principal{}, identity.ErrNoPrincipal
	}
	return p, nil
}

func (h *handlers) showEntitlement(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	rec, err := h.service.Record(ctx, p.UserID)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSON(newEntitlementResponse(rec))
}

type accessRequest struct {
	DocumentID string `query:"document_id"`
	RoleID     string `query:"role_id"`
}

type accessResponse struct {
	Allowed bool              `json:"allowed"`
	Scope   entitlement.Scope `json:"scope"`
}

func (h *handlers) access(ctx handler.Context, req accessRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	if req.DocumentID == "" {
		return h.errorResponse(ctx.Request(),
			handler.NewHTTPError(http.StatusBadRequest, codeInvalidRequest, "document_id is required."))
	}
	scope := entitlement.Scope{DocumentID: req.DocumentID, RoleID: req.RoleID}
	allowed, err := h.service.CheckAccess(ctx, p.UserID, scope)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSON(accessResponse{Allowed: allowed, Scope: scope})
}

func (h *handlers) startTrial(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	rec, err := h.service.StartTrial(ctx, p.UserID)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSONWithStatus(http.StatusCreated, newEntitlementResponse(rec))
}

type checkoutRequest struct {
	Tier       string `json:"tier"`
	DocumentID string `json:"document_id,omitempty"`
	RoleID     string `json:"role_id,omitempty"`
	SuccessURL string `json:"success_url,omitempty"`
}

func (r checkoutRequest) scope() *entitlement.Scope {
	if r.DocumentID == "" && r.RoleID == "" {
		return nil
	}
	return &entitlement.Scope{DocumentID: r.DocumentID, RoleID: r.RoleID}
}

func (h *handlers) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	if req.Tier == "" {
		return h.errorResponse(ctx.Request(), fmt.Errorf("%w: tier is required", entitlement.ErrUnknownTier))
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	link, err := h.service.CreateCheckout(ctx, entitlement.CheckoutParams{
		UserID:     p.UserID,
		Email:      p.Email,
		Tier:       tier,
		Scope:      req.scope(),
		SuccessURL: req.SuccessURL,
	})
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSONWithStatus(http.StatusCreated, link)
}

type refundRequest struct {
	PaymentRef string `path:"paymentRef" json:"-"`
	Reason     string `json:"reason,omitempty"`
}

func (h *handlers) requestRefund(ctx handler.Context, req refundRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	rec, err := h.service.RequestRefund(ctx, p.UserID, req.PaymentRef, req.Reason)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSON(newEntitlementResponse(rec))
}

type scopeRequest struct {
	PaymentRef string `path:"paymentRef" json:"-"`
	DocumentID string `json:"document_id"`
	RoleID     string `json:"role_id,omitempty"`
}

func (h *handlers) changeScope(ctx handler.Context, req scopeRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	scope := entitlement.Scope{DocumentID: req.DocumentID, RoleID: req.RoleID}
	rec, err := h.service.ChangeScope(ctx, p.UserID, req.PaymentRef, scope)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSON(newEntitlementResponse(rec))
}

type grantRef struct {
	PaymentRef string `path:"paymentRef"`
}

func (h *handlers) cancel(ctx handler.Context, req grantRef) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	if err := h.service.CancelSubscription(ctx, p.UserID, req.PaymentRef); err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSONWithStatus(http.StatusAccepted, map[string]bool{"cancel_at_period_end": true})
}

type refundsResponse struct {
	Refunds []entitlement.PendingRefund `json:"refunds"`
}

func (h *handlers) listRefunds(ctx handler.Context, _ struct{}) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	refunds, err := h.service.ListRefundRequests(ctx, p.UserID)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	if refunds == nil {
		refunds = []entitlement.PendingRefund{}
	}
	return handler.JSON(refundsResponse{Refunds: refunds})
}

type approveRequest struct {
	UserID     string `path:"userID"`
	PaymentRef string `path:"paymentRef"`
}

func (h *handlers) approveRefund(ctx handler.Context, req approveRequest) handler.Response {
	p, err := principal(ctx)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	rec, err := h.service.ApproveRefund(ctx, p.UserID, req.UserID, req.PaymentRef)
	if err != nil {
		return h.errorResponse(ctx.Request(), err)
	}
	return handler.JSON(newEntitlementResponse(rec))
}
