package entitlement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Paddle notification types the engine acts on.
const (
	paddleTransactionCompleted = "transaction.completed"
	paddleSubscriptionUpdated  = "subscription.updated"
	paddleSubscriptionPastDue  = "subscription.past_due"
	paddleSubscriptionResumed  = "subscription.resumed"
	paddleSubscriptionCanceled = "subscription.canceled"

	// Renewal transactions reuse the subscription's custom data; the
	// original grant covers them.
	paddleOriginRecurring = "subscription_recurring"

	providerStatusActive  = "active"
	providerStatusPastDue = "past_due"
)

// PaddleDecoder decodes Paddle Billing notifications.
type PaddleDecoder struct{}

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleTransaction struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Origin         string         `json:"origin"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	BilledAt       *time.Time     `json:"billed_at"`
	CustomData     map[string]any `json:"custom_data"`
	BillingPeriod  *paddlePeriod  `json:"billing_period"`
}

type paddleSubscription struct {
	ID                   string                 `json:"id"`
	Status               string                 `json:"status"`
	CustomerID           string                 `json:"customer_id"`
	CustomData           map[string]any         `json:"custom_data"`
	CanceledAt           *time.Time             `json:"canceled_at"`
	ScheduledChange      *paddleScheduledChange `json:"scheduled_change"`
	CurrentBillingPeriod *paddlePeriod          `json:"current_billing_period"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleScheduledChange struct {
	Action      string    `json:"action"`
	EffectiveAt time.Time `json:"effective_at"`
}

func (PaddleDecoder) Decode(payload []byte) (Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	switch env.EventType {
	case paddleTransactionCompleted:
		return decodeTransactionCompleted(env)
	case paddleSubscriptionUpdated, paddleSubscriptionPastDue, paddleSubscriptionResumed:
		return decodeSubscriptionUpdated(env)
	case paddleSubscriptionCanceled:
		return decodeSubscriptionCanceled(env)
	default:
		return IgnoredEvent{ID: env.EventID, Type: env.EventType}, nil
	}
}

func decodeTransactionCompleted(env paddleEnvelope) (Event, error) {
	var tx paddleTransaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("%w: transaction: %w", ErrMalformedEvent, err)
	}
	if tx.Origin == paddleOriginRecurring {
		return IgnoredEvent{ID: env.EventID, Type: env.EventType}, nil
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: transaction has no id", ErrMalformedEvent)
	}

	md, err := readMetadata(tx.CustomData)
	if err != nil {
		return nil, err
	}
	if md.userID == "" {
		return nil, fmt.Errorf("%w: custom data has no %s", ErrMalformedEvent, MetaUserID)
	}
	tier, err := ParseTier(md.tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	ev := CheckoutCompleted{
		ID:              env.EventID,
		UserID:          md.userID,
		Email:           md.email,
		Tier:            tier,
		Scope:           md.scope(),
		PaymentRef:      tx.ID,
		SubscriptionRef: tx.SubscriptionID,
		CustomerRef:     tx.CustomerID,
		OccurredAt:      env.OccurredAt,
	}
	if tx.BilledAt != nil {
		ev.OccurredAt = *tx.BilledAt
	}
	if tx.BillingPeriod != nil && !tx.BillingPeriod.EndsAt.IsZero() {
		ev.PeriodEnd = timePtr(tx.BillingPeriod.EndsAt)
	}
	return ev, nil
}

func decodeSubscriptionUpdated(env paddleEnvelope) (Event, error) {
	sub, err := decodeSubscription(env)
	if err != nil {
		return nil, err
	}
	md, err := readMetadata(sub.CustomData)
	if err != nil {
		return nil, err
	}

	ev := SubscriptionUpdated{
		ID:              env.EventID,
		UserID:          md.userID,
		SubscriptionRef: sub.ID,
		ProviderStatus:  sub.Status,
		CancelAtPeriodEnd: sub.ScheduledChange != nil &&
			sub.ScheduledChange.Action == "cancel",
	}
	if sub.CurrentBillingPeriod != nil && !sub.CurrentBillingPeriod.EndsAt.IsZero() {
		ev.PeriodEnd = timePtr(sub.CurrentBillingPeriod.EndsAt)
	}
	return ev, nil
}

func decodeSubscriptionCanceled(env paddleEnvelope) (Event, error) {
	sub, err := decodeSubscription(env)
	if err != nil {
		return nil, err
	}
	md, err := readMetadata(sub.CustomData)
	if err != nil {
		return nil, err
	}

	ev := SubscriptionDeleted{
		ID:              env.EventID,
		UserID:          md.userID,
		SubscriptionRef: sub.ID,
		OccurredAt:      env.OccurredAt,
	}
	if sub.CanceledAt != nil {
		ev.OccurredAt = *sub.CanceledAt
	}
	return ev, nil
}

func decodeSubscription(env paddleEnvelope) (paddleSubscription, error) {
	var sub paddleSubscription
	if err := json.Unmarshal(env.Data, &sub); err != nil {
		return sub, fmt.Errorf("%w: subscription: %w", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return sub, fmt.Errorf("%w: subscription has no id", ErrMalformedEvent)
	}
	return sub, nil
}

type metadata struct {
	userID     string
	email      string
	tier       string
	documentID string
	roleID     string
}

func (m metadata) scope() *Scope {
	if m.documentID == "" && m.roleID == "" {
		return nil
	}
	return &Scope{DocumentID: m.documentID, RoleID: m.roleID}
}

func readMetadata(data map[string]any) (metadata, error) {
	var md metadata
	fields := []struct {
		key string
		dst *string
	}{
		{MetaUserID, &md.userID},
		{MetaEmail, &md.email},
		{MetaTier, &md.tier},
		{MetaDocumentID, &md.documentID},
		{MetaRoleID, &md.roleID},
	}
	for _, f := range fields {
		v, ok := data[f.key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return md, fmt.Errorf("%w: custom data %s is %T, want string", ErrMalformedEvent, f.key, v)
		}
		*f.dst = strings.TrimSpace(s)
	}
	return md, nil
}
