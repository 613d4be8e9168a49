package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

// RoutingGrantAdmitted is the routing key of admission events.
const RoutingGrantAdmitted = "entitlement.grant.admitted"

// GrantEvent is the JSON body published for every admitted grant.
type GrantEvent struct {
	EventID    string                  `json:"event_id"`
	Type       string                  `json:"type"`
	OccurredAt time.Time               `json:"occurred_at"`
	Data       entitlement.GrantNotice `json:"data"`
}

// GrantNotifier publishes admissions so other services (analytics, content
// unlock caches) can react.
type GrantNotifier struct {
	pub Publisher
}

// NewGrantNotifier returns an entitlement.Notifier publishing through pub.
func NewGrantNotifier(pub Publisher) *GrantNotifier {
	if pub == nil {
		panic("eventbus: publisher is required")
	}
	return &GrantNotifier{pub: pub}
}

func (n *GrantNotifier) GrantAdmitted(ctx context.Context, notice entitlement.GrantNotice) error {
	ev := GrantEvent{
		EventID:    uuid.NewString(),
		Type:       RoutingGrantAdmitted,
		OccurredAt: notice.AdmittedAt,
		Data:       notice,
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, Message{
		ID:         ev.EventID,
		RoutingKey: RoutingGrantAdmitted,
		Body:       body,
		Timestamp:  ev.OccurredAt,
	})
}
