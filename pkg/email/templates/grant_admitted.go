package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// GrantAdmittedData fills the purchase confirmation email.
type GrantAdmittedData struct {
	Product    string
	Tier       string
	Scope      string // empty for unscoped tiers
	Superseded int
	PaymentRef string
}

// GrantAdmitted is the purchase confirmation body. Every interpolated value
// is HTML escaped.
func GrantAdmitted(d GrantAdmittedData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sw stickyWriter
		sw.w = w

		sw.write("<!doctype html>\n<html><body>\n<p>Thanks for your purchase.</p>\n<p>Your ")
		sw.write(templ.EscapeString(d.Product))
		sw.write(" <strong>")
		sw.write(templ.EscapeString(d.Tier))
		sw.write("</strong> access is active")
		if d.Scope != "" {
			sw.write(" for ")
			sw.write(templ.EscapeString(d.Scope))
		}
		sw.write(".</p>\n")
		if d.Superseded > 0 {
			sw.write("<p>It replaces ")
			sw.write(strconv.Itoa(d.Superseded))
			sw.write(" earlier grant(s) on your account.</p>\n")
		}
		sw.write("<p>Payment reference: ")
		sw.write(templ.EscapeString(d.PaymentRef))
		sw.write("</p>\n</body></html>")
		return sw.err
	})
}

// stickyWriter keeps the first write error and drops later writes.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) write(str string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, str)
}
