package mailer

import (
	"fmt"
	"strings"
	"text/template"
)

// TemplateData is the payload rendered into notification templates.
type TemplateData struct {
	ApplicantName string
	FileNumber    string
	State         string
	ProgramName   string
	Reason        string
	Deadline      string
	PortalURL     string
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

// Registry resolves template refs to renderable notification templates.
type Registry struct {
	templates map[string]messageTemplate
}

// NewRegistry builds the registry with the built-in admission templates.
func NewRegistry() *Registry {
	r := &Registry{templates: map[string]messageTemplate{}}
	for ref, def := range builtinTemplates {
		r.templates[ref] = messageTemplate{
			subject: def.subject,
			body:    template.Must(template.New(ref).Parse(def.body)),
		}
	}
	return r
}

// Has reports whether a template ref is known.
func (r *Registry) Has(ref string) bool {
	_, ok := r.templates[ref]
	return ok
}

// Render produces the subject and body for a template ref.
func (r *Registry) Render(ref string, data TemplateData) (subject, body string, err error) {
	tmpl, ok := r.templates[ref]
	if !ok {
		return "", "", fmt.Errorf("unknown template ref %q", ref)
	}
	var buf strings.Builder
	if err := tmpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template %q: %w", ref, err)
	}
	return tmpl.subject, buf.String(), nil
}

var builtinTemplates = map[string]struct {
	subject string
	body    string
}{
	"admission_submitted": {
		subject: "Application received",
		body: `Dear {{.ApplicantName}},

Your application has been received and assigned file number {{.FileNumber}}.
It is now awaiting ministry review. We will notify you at every step.

ACMST Admissions Office`,
	},
	"admission_ministry_approved": {
		subject: "Ministry approval granted",
		body: `Dear {{.ApplicantName}},

Your application {{.FileNumber}} has been approved by the ministry.
The next step is the medical examination. Please visit the health clinic.

ACMST Admissions Office`,
	},
	"admission_health_approved": {
		subject: "Medical clearance completed",
		body: `Dear {{.ApplicantName}},

The medical examination for application {{.FileNumber}} is complete.
Your file has been forwarded to the program coordinator for academic review.

ACMST Admissions Office`,
	},
	"admission_conditional": {
		subject: "Conditional approval",
		body: `Dear {{.ApplicantName}},

Your application {{.FileNumber}} has been conditionally approved.
Outstanding requirements must be completed{{if .Deadline}} before {{.Deadline}}{{end}}.
{{if .Reason}}Details: {{.Reason}}{{end}}

ACMST Admissions Office`,
	},
	"admission_rejected": {
		subject: "Application decision",
		body: `Dear {{.ApplicantName}},

We regret to inform you that application {{.FileNumber}} was not successful.
{{if .Reason}}Reason: {{.Reason}}{{end}}

ACMST Admissions Office`,
	},
	"admission_completed": {
		subject: "Welcome to ACMST",
		body: `Dear {{.ApplicantName}},

Congratulations! Application {{.FileNumber}} is complete and your student
record has been created for {{.ProgramName}}.

ACMST Admissions Office`,
	},
	"admission_cancelled": {
		subject: "Application cancelled",
		body: `Dear {{.ApplicantName}},

Application {{.FileNumber}} has been cancelled.
{{if .Reason}}Reason: {{.Reason}}{{end}}

ACMST Admissions Office`,
	},
	"condition_overdue": {
		subject: "Condition deadline passed",
		body: `Dear {{.ApplicantName}},

A requirement on application {{.FileNumber}} passed its deadline{{if .Deadline}} ({{.Deadline}}){{end}}.
Please contact the admissions office as soon as possible.

ACMST Admissions Office`,
	},
	"admission_timeout_reminder": {
		subject: "Application awaiting action",
		body: `Dear {{.ApplicantName}},

Application {{.FileNumber}} has been waiting in the {{.State}} stage longer
than expected. The admissions office has been notified.

ACMST Admissions Office`,
	},
}
