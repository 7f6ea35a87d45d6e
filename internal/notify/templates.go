package notify

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

type deadlineView struct {
	DeadlineReminder
	Urgent        bool
	DeadlineLabel string
	BrandName     string
}

type statusView struct {
	StatusUpdate
	OldLabel  string
	NewLabel  string
	BrandName string
}

const footerHTML = `{{if .UnsubscribeURL}}<p style="color:#71717a;font-size:12px;margin-top:24px">
You are receiving this because email notifications are on.
<a href="{{.UnsubscribeURL}}" style="color:#71717a">Unsubscribe</a></p>{{end}}`

const footerText = `{{if .UnsubscribeURL}}
--
You are receiving this because email notifications are on.
Unsubscribe: {{.UnsubscribeURL}}
{{end}}`

var deadlineHTML = htmltemplate.Must(htmltemplate.New("deadline").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;max-width:600px;margin:0 auto;padding:20px">
<h2 style="color:{{if .Urgent}}#dc2626{{else}}#f59e0b{{end}}">{{if .Urgent}}Due tomorrow{{else}}{{.DaysLeft}} days left{{end}}</h2>
<p>Hi {{.UserName}},</p>
<p>The deadline for this sponsorship is coming up.</p>
<div style="background:#f4f4f5;padding:16px;border-radius:8px">
<p><strong>Deal:</strong> {{.DealTitle}}</p>
<p><strong>Brand:</strong> {{.BrandName}}</p>
<p><strong>Deadline:</strong> {{.DeadlineLabel}}</p>
</div>
<p><a href="{{.DealURL}}" style="display:inline-block;background:#06b6d4;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none">Open deal</a></p>
` + footerHTML + `
</body></html>`))

var deadlineText = texttemplate.Must(texttemplate.New("deadline").Parse(`Hi {{.UserName}},

{{if .Urgent}}This deal is due tomorrow.{{else}}This deal is due in {{.DaysLeft}} days.{{end}}

Deal:     {{.DealTitle}}
Brand:    {{.BrandName}}
Deadline: {{.DeadlineLabel}}

Open deal: {{.DealURL}}
` + footerText))

var statusHTML = htmltemplate.Must(htmltemplate.New("status").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;max-width:600px;margin:0 auto;padding:20px">
<h2 style="color:#06b6d4">Deal status updated</h2>
<p>Hi {{.UserName}},</p>
<div style="background:#f4f4f5;padding:16px;border-radius:8px">
<p><strong>Deal:</strong> {{.DealTitle}}</p>
<p><strong>Brand:</strong> {{.BrandName}}</p>
<p><strong>Status:</strong> {{.OldLabel}} &rarr; {{.NewLabel}}</p>
</div>
<p><a href="{{.DealURL}}">Open deal</a></p>
` + footerHTML + `
</body></html>`))

var statusText = texttemplate.Must(texttemplate.New("status").Parse(`Hi {{.UserName}},

Deal:   {{.DealTitle}}
Brand:  {{.BrandName}}
Status: {{.OldLabel}} -> {{.NewLabel}}

Open deal: {{.DealURL}}
` + footerText))

var contactHTML = htmltemplate.Must(htmltemplate.New("contact").Parse(`<!doctype html>
<html><body style="font-family:sans-serif;max-width:600px;margin:0 auto">
<h2 style="color:#06b6d4">New contact form message</h2>
<div style="background:#f4f4f5;padding:20px;border-radius:8px;margin:20px 0">
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Message:</strong></p>
<p style="white-space:pre-wrap">{{.Message}}</p>
</div>
<p style="color:#71717a;font-size:12px">Sponsor Tracker contact form</p>
</body></html>`))

var contactText = texttemplate.Must(texttemplate.New("contact").Parse(`New contact form message

Name:  {{.Name}}
Email: {{.Email}}

{{.Message}}
`))
