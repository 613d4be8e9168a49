package email

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/examgate/pkg/email/templates"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

const grantAdmittedTag = "grant-admitted"

// GrantNotifier emails the buyer when a purchase is admitted. Notices
// without an email address are skipped.
type GrantNotifier struct {
	sender  EmailSender
	product string
}

// NewGrantNotifier returns an entitlement.Notifier sending through sender.
func NewGrantNotifier(sender EmailSender, cfg Config) *GrantNotifier {
	if sender == nil {
		panic("email: sender is required")
	}
	product := cfg.ProductName
	if product == "" {
		product = "ExamGate"
	}
	return &GrantNotifier{sender: sender, product: product}
}

// GrantAdmitted sends the purchase confirmation. Trials and notices without
// an address are skipped without error.
func (n *GrantNotifier) GrantAdmitted(ctx context.Context, notice entitlement.GrantNotice) error {
	if notice.Email == "" || !notice.Tier.Paid() {
		return nil
	}

	data := templates.GrantAdmittedData{
		Product:    n.product,
		Tier:       notice.Tier.String(),
		Superseded: notice.Superseded,
		PaymentRef: notice.PaymentRef,
	}
	if notice.Scope != nil {
		data.Scope = notice.Scope.String()
	}

	body, err := templates.Render(ctx, templates.GrantAdmitted(data))
	if err != nil {
		return fmt.Errorf("email: render grant confirmation: %w", err)
	}

	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   notice.Email,
		Subject:  fmt.Sprintf("Your %s %s access is ready", n.product, notice.Tier),
		BodyHTML: body,
		Tag:      grantAdmittedTag,
	})
}
