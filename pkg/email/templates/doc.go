// Package templates holds the templ components used as email bodies and a
// helper to render them to a string.
//
//	html, err := templates.Render(ctx, templates.GrantAdmitted(templates.GrantAdmittedData{
//	    Product:    "ExamGate",
//	    Tier:       "document",
//	    Scope:      "doc-42",
//	    PaymentRef: "txn_01",
//	}))
//	if err != nil {
//	    return err
//	}
package templates
