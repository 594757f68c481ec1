package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

type view struct {
	Deferral
	RecipientName string
	Reason        string
	Link          string
	ListLink      string
}

// Templates renders notices into emails. Links point into the frontend.
type Templates struct {
	frontendURL string
	tmpl        *template.Template
}

func NewTemplates(frontendURL string) *Templates {
	return &Templates{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		tmpl:        template.Must(template.New("email").Parse(emailTemplates)),
	}
}

// DeepLink routes through the login page so the user lands on target after signing in.
func (t *Templates) DeepLink(target string) string {
	return t.frontendURL + "/login?next=" + url.QueryEscape(target)
}

func (t *Templates) detailLink(id string) string {
	return t.frontendURL + "/deferrals/" + url.PathEscape(id)
}

func (t *Templates) Render(n Notice) (Message, error) {
	v := view{Deferral: n.Deferral, RecipientName: n.To.Name, Reason: n.Reason}
	if v.CustomerName == "" {
		v.CustomerName = "-"
	}
	if v.DCLNumber == "" {
		v.DCLNumber = "-"
	}

	approverLink := t.DeepLink("/approver?deferralId=" + n.Deferral.ID)
	var subject, name string
	switch n.Kind {
	case KindSubmitted:
		subject, name = "Deferral %s awaiting your approval", "submitted"
		v.Link = approverLink
	case KindMoved:
		subject, name = "Deferral %s moved to you for approval", "moved"
		v.Link = approverLink
	case KindFinalApproved:
		subject, name = "Deferral %s approved", "final_approved"
		v.Link = t.detailLink(n.Deferral.ID)
	case KindRejected:
		subject, name = "Deferral %s rejected", "rejected"
		v.Link = t.detailLink(n.Deferral.ID)
		v.ListLink = t.DeepLink("/rm/deferrals/pending?active=rejected")
	case KindReturned:
		subject, name = "Deferral %s returned for rework", "returned_for_rework"
		v.Link = t.detailLink(n.Deferral.ID)
		v.ListLink = t.DeepLink("/rm/deferrals/pending?active=rejected")
	case KindReminder:
		subject, name = "Reminder: Deferral %s awaiting your approval", "reminder"
		v.Link = approverLink
	default:
		return Message{}, fmt.Errorf("unknown notice kind %q", n.Kind)
	}

	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return Message{}, fmt.Errorf("render %s template: %w", name, err)
	}
	return Message{Subject: fmt.Sprintf(subject, n.Deferral.Number), HTML: buf.String()}, nil
}

// InAppMessage is the text stored in the in-app notification log.
func InAppMessage(n Notice) string {
	switch n.Kind {
	case KindRejected:
		return fmt.Sprintf("Your deferral %s was rejected: %s", n.Deferral.Number, n.Reason)
	case KindReturned:
		return fmt.Sprintf("Your deferral %s has been returned for rework: %s", n.Deferral.Number, n.Reason)
	case KindFinalApproved:
		return fmt.Sprintf("Your deferral %s has been approved", n.Deferral.Number)
	default:
		return fmt.Sprintf("Deferral %s needs your attention", n.Deferral.Number)
	}
}

const emailTemplates = `
{{define "rows"}}<table style="border-collapse: collapse; width: 100%; max-width: 600px;">
  <tr><td style="padding:6px 8px;border:1px solid #eee;font-weight:600">Deferral No</td><td style="padding:6px 8px;border:1px solid #eee">{{.Number}}</td></tr>
  <tr><td style="padding:6px 8px;border:1px solid #eee;font-weight:600">Customer</td><td style="padding:6px 8px;border:1px solid #eee">{{.CustomerName}}</td></tr>
  <tr><td style="padding:6px 8px;border:1px solid #eee;font-weight:600">DCL No</td><td style="padding:6px 8px;border:1px solid #eee">{{.DCLNumber}}</td></tr>
  <tr><td style="padding:6px 8px;border:1px solid #eee;font-weight:600">Days Sought</td><td style="padding:6px 8px;border:1px solid #eee">{{if .DaysSought}}{{.DaysSought}} days{{else}}-{{end}}</td></tr>
  <tr><td style="padding:6px 8px;border:1px solid #eee;font-weight:600">Status</td><td style="padding:6px 8px;border:1px solid #eee">{{.Status}}</td></tr>
</table>{{end}}

{{define "footer"}}<p style="font-size:12px;color:#666">This is an automated notification.</p>{{end}}

{{define "submitted"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Deferral Request awaiting your approval</h3>
  {{template "rows" .}}
  <p style="margin-top:12px">Please review and take action: <a href="{{.Link}}">{{.Link}}</a></p>
  {{template "footer"}}
</div>{{end}}

{{define "moved"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Deferral moved to you for approval</h3>
  {{template "rows" .}}
  <p style="margin-top:12px">Please review and take action: <a href="{{.Link}}">{{.Link}}</a></p>
  {{template "footer"}}
</div>{{end}}

{{define "final_approved"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Deferral Approved: {{.Number}}</h3>
  <p>The deferral has completed approvals{{if .ApprovedAt}} and was approved on {{.ApprovedAt.Format "02 Jan 2006 15:04 MST"}}{{end}}.</p>
  {{template "rows" .}}
  <p>View details: <a href="{{.Link}}">{{.Link}}</a></p>
  {{template "footer"}}
</div>{{end}}

{{define "rejected"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Deferral Rejected: {{.Number}}</h3>
  <p>Your deferral request has been rejected.</p>
  <p><strong>Reason:</strong> {{.Reason}}</p>
  {{template "rows" .}}
  <p><a href="{{.Link}}">View Deferral Details</a></p>
  <p><a href="{{.ListLink}}">View All Rejected Items</a></p>
  {{template "footer"}}
</div>{{end}}

{{define "returned_for_rework"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Deferral Returned for Rework</h3>
  <p>Your deferral request <strong>{{.Number}}</strong> has been returned for rework.</p>
  <p><strong>Reason:</strong> {{.Reason}}</p>
  <p><a href="{{.Link}}">View Deferral Details</a></p>
  <p><a href="{{.ListLink}}">View All Rework Items</a></p>
  {{template "footer"}}
</div>{{end}}

{{define "reminder"}}<div style="font-family: Arial, Helvetica, sans-serif; color: #222;">
  <h3>Reminder: Deferral awaiting your approval</h3>
  <p>Hi {{if .RecipientName}}{{.RecipientName}}{{else}}there{{end}},</p>
  <p>Deferral <strong>{{.Number}}</strong> is still waiting for your approval.</p>
  {{template "rows" .}}
  <p style="margin-top:12px">Please review and take action: <a href="{{.Link}}">{{.Link}}</a></p>
  {{template "footer"}}
</div>{{end}}
`
