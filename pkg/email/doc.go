// Package email sends transactional mail.
//
// Production delivery goes through Postmark (NewPostmarkClient). Without
// Postmark credentials NewSender returns a DevSender that writes each message
// to disk as HTML plus a JSON envelope, which is handy when running the
// service locally.
//
// GrantNotifier plugs into the entitlement reconciler and emails buyers a
// confirmation after a purchase is admitted:
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//	    return err
//	}
//	notifier := email.NewGrantNotifier(sender, cfg)
//
// Message bodies are templ components from the templates subpackage,
// rendered to a string before sending:
//
//	html, err := templates.Render(ctx, templates.GrantAdmitted(data))
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Your access is ready",
//	    BodyHTML: html,
//	})
//
// All validation failures wrap ErrInvalidParams or ErrInvalidConfig; delivery
// failures wrap ErrFailedToSendEmail.
package email
