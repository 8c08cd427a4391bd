package email

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

var ErrNoRecipients = errors.New("email has no recipients")

type Template string

const (
	TemplateApprovalRequested  Template = "approval_requested"
	TemplateApprovalDecided    Template = "approval_decided"
	TemplateClientReview       Template = "client_review"
	TemplateClientDecided      Template = "client_decided"
	TemplateInvoiceOutstanding Template = "invoice_outstanding"
	TemplateInvoiceReminder    Template = "invoice_reminder"
	TemplateInstallmentDue     Template = "installment_due"
	TemplateDeletionRequested  Template = "deletion_requested"
	TemplateTodoAssigned       Template = "todo_assigned"
)

// Message is a rendered email.
type Message struct {
	To       []string
	Subject  string
	Body     string
	Template Template
}

type source struct {
	subject string
	body    string
}

var sources = map[Template]source{
	TemplateApprovalRequested: {
		subject: "Approval requested: {{.Title}}",
		body: `{{.RequesterName}} has submitted {{.Kind}} "{{.Title}}" for your approval.

Review it here: {{.Link}}
`,
	},
	TemplateApprovalDecided: {
		subject: "{{.Kind}} {{.Title}} was {{.Decision}}",
		body: `{{.ApproverName}} marked {{.Kind}} "{{.Title}}" as {{.Decision}}.
{{if .Comments}}
Comments: {{.Comments}}
{{end}}`,
	},
	TemplateClientReview: {
		subject: "Proposal {{.Reference}} is ready for your review",
		body: `Dear {{.ClientName}},

Please review and sign proposal "{{.Title}}" ({{.Amount}} {{.Currency}}).

{{.Link}}

This link expires on {{.ExpiresAt}}.
`,
	},
	TemplateClientDecided: {
		subject: "Client {{.Decision}} proposal {{.Reference}}",
		body: `{{.SignerName}} {{.Decision}} proposal "{{.Title}}".
{{if .Comments}}
Comments: {{.Comments}}
{{end}}`,
	},
	TemplateInvoiceOutstanding: {
		subject: "Invoice {{.Number}} is outstanding",
		body: `Invoice {{.Number}} for {{.Amount}} {{.Currency}} was due on {{.DueDate}} and has not been paid.
`,
	},
	TemplateInvoiceReminder: {
		subject: "Reminder {{.ReminderCount}}: invoice {{.Number}} is still outstanding",
		body: `Invoice {{.Number}} for {{.Amount}} {{.Currency}} has been outstanding since {{.OutstandingSince}}.
`,
	},
	TemplateInstallmentDue: {
		subject: "Installment due {{.DueDate}} for proposal {{.Reference}}",
		body: `An installment of {{.Amount}} {{.Currency}} for proposal "{{.Title}}" falls due on {{.DueDate}} and has not been invoiced yet.
`,
	},
	TemplateDeletionRequested: {
		subject: "Deletion of user {{.TargetName}} needs your approval",
		body: `{{.RequesterName}} asked to delete the account of {{.TargetName}}.
{{if .Reason}}
Reason: {{.Reason}}
{{end}}{{if .Blocking}}
Still referenced by {{.Blocking}}. It will be rejected on the second approval unless these are reassigned.
{{end}}`,
	},
	TemplateTodoAssigned: {
		subject: "New task: {{.Title}}",
		body: `{{.CreatorName}} assigned you "{{.Title}}"{{if .DueDate}}, due {{.DueDate}}{{end}}.
`,
	},
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

var templates = func() map[Template]compiled {
	out := make(map[Template]compiled, len(sources))
	for name, src := range sources {
		out[name] = compiled{
			subject: template.Must(template.New(string(name) + ".subject").Parse(src.subject)),
			body:    template.Must(template.New(string(name) + ".body").Parse(src.body)),
		}
	}
	return out
}()

// Render fills the named template with data.
func Render(name Template, to []string, data map[string]interface{}) (Message, error) {
	t, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", name)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Message{To: to, Subject: subject.String(), Body: body.String(), Template: name}, nil
}
