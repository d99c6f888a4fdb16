package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const productName = "SEO Dashboard"

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:0;background-color:#f4f4f5;font-family:Helvetica,Arial,sans-serif;">
<table width="100%" cellpadding="0" cellspacing="0" style="padding:40px 20px;">
<tr><td align="center">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:560px;background-color:#ffffff;border-radius:12px;">
<tr><td style="background-color:#0bcc22;padding:28px 40px;text-align:center;">
<h1 style="margin:0;color:#000000;font-size:22px;">{{.Title}}</h1>
</td></tr>
<tr><td style="padding:36px 40px;color:#4b5563;font-size:15px;line-height:1.6;">
{{template "body" .}}
</td></tr>
<tr><td style="background-color:#f9fafb;padding:18px 40px;text-align:center;color:#9ca3af;font-size:12px;">
&copy; {{.Year}} {{.Product}}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

var (
	verificationTmpl = mustBody(`{{define "body"}}
<h2 style="margin:0 0 16px;color:#111827;">Welcome{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>An account has been created for you on {{.Product}}. Please verify your email address to activate it.</p>
<p style="text-align:center;margin:28px 0;">
<a href="{{.Link}}" style="display:inline-block;padding:14px 36px;background-color:#0bcc22;color:#000000;text-decoration:none;border-radius:8px;font-weight:600;">Verify Email Address</a>
</p>
<p style="font-size:13px;">If the button does not work, paste this link into your browser:<br><a href="{{.Link}}">{{.Link}}</a></p>
<p style="font-size:12px;color:#9ca3af;">This link expires in <strong>24 hours</strong>. If it has expired, contact your administrator to resend the verification email.</p>
<p style="font-size:12px;color:#9ca3af;">If you did not expect this email, you can safely ignore it.</p>
{{end}}`)

	adminVerifiedTmpl = mustBody(`{{define "body"}}
<p>A user has verified their email and activated their account:</p>
<table cellpadding="0" cellspacing="0" style="width:100%;border:1px solid #e5e7eb;">
<tr><td style="padding:10px 16px;font-weight:600;">Name</td><td style="padding:10px 16px;">{{if .Name}}{{.Name}}{{else}}N/A{{end}}</td></tr>
<tr><td style="padding:10px 16px;font-weight:600;">Email</td><td style="padding:10px 16px;">{{.Email}}</td></tr>
<tr><td style="padding:10px 16px;font-weight:600;">Role</td><td style="padding:10px 16px;">{{.Role}}</td></tr>
<tr><td style="padding:10px 16px;font-weight:600;">Verified At</td><td style="padding:10px 16px;">{{.At}}</td></tr>
</table>
{{end}}`)

	resetTmpl = mustBody(`{{define "body"}}
<h2 style="margin:0 0 16px;color:#111827;">Reset your password</h2>
<p>Hi{{if .Name}} {{.Name}}{{end}}, we received a request to reset the password of your {{.Product}} account.</p>
<p style="text-align:center;margin:28px 0;">
<a href="{{.Link}}" style="display:inline-block;padding:14px 36px;background-color:#0bcc22;color:#000000;text-decoration:none;border-radius:8px;font-weight:600;">Reset Password</a>
</p>
<p style="font-size:13px;">Or paste this link into your browser:<br><a href="{{.Link}}">{{.Link}}</a></p>
<p style="font-size:12px;color:#9ca3af;">This link expires in <strong>1 hour</strong>. If you did not request a reset, ignore this email.</p>
{{end}}`)
)

func mustBody(body string) *template.Template {
	return template.Must(template.Must(layout.Clone()).Parse(body))
}

type templateData struct {
	Title   string
	Product string
	Year    int
	Name    string
	Email   string
	Role    string
	Link    string
	At      string
}

func render(t *template.Template, d templateData) (string, error) {
	d.Product = productName
	if d.Year == 0 {
		d.Year = time.Now().Year()
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func VerificationEmail(to, name, link string) (Message, error) {
	html, err := render(verificationTmpl, templateData{Title: productName, Name: name, Link: link})
	if err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}

	greeting := "Welcome!"
	if name != "" {
		greeting = "Welcome, " + name + "!"
	}

	return Message{
		To:      to,
		Subject: "Verify Your Email - " + productName,
		HTML:    html,
		Text: greeting + "\n\nAn account has been created for you on " + productName +
			".\n\nPlease verify your email by visiting:\n" + link +
			"\n\nThis link expires in 24 hours.\n\nIf you did not expect this email, you can safely ignore it.",
		Kind: KindVerification,
	}, nil
}

func AdminUserVerifiedEmail(to, name, email, role string, at time.Time) (Message, error) {
	html, err := render(adminVerifiedTmpl, templateData{
		Title: "User Verified",
		Name:  name,
		Email: email,
		Role:  role,
		At:    at.UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render admin notification: %w", err)
	}

	return Message{
		To:      to,
		Subject: "User Verified - " + productName,
		HTML:    html,
		Kind:    KindAdminVerified,
	}, nil
}

func PasswordResetEmail(to, name, link string) (Message, error) {
	html, err := render(resetTmpl, templateData{Title: "Password Reset", Name: name, Link: link})
	if err != nil {
		return Message{}, fmt.Errorf("render password reset email: %w", err)
	}

	return Message{
		To:      to,
		Subject: "Reset Your Password - " + productName,
		HTML:    html,
		Text:    "Reset your password by visiting:\n" + link + "\n\nThis link expires in 1 hour.",
		Kind:    KindPasswordReset,
	}, nil
}
