// Package mail renders and delivers the verification email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	textTemplate "text/template"
)

const VerificationSubject = "Verify Your Poll Worker Registration"

// Message is a rendered email ready for a Sender.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// Sender delivers a rendered Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type verificationData struct {
	Name            string
	VerificationURL string
}

var verificationHTML = template.Must(template.New("verification.html").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Verify Your Email</title></head>
<body>
  <h1>Verify Your Email Address</h1>
  <p>Hello {{.Name}},</p>
  <p>Thank you for registering to become a poll worker in Warren, CT. To complete your registration, please verify your email address by clicking the button below:</p>
  <p><a href="{{.VerificationURL}}">Verify Email Address</a></p>
  <p>If the button above doesn't work, you can copy and paste the following link into your browser:</p>
  <p>{{.VerificationURL}}</p>
  <p>This verification link will expire in 48 hours.</p>
  <p>If you did not register for poll worker service, please disregard this email.</p>
  <p>This is an automated message from the Warren, CT Poll Worker Registration System. Please do not reply to this email.</p>
</body>
</html>
`))

var verificationText = textTemplate.Must(textTemplate.New("verification.txt").Parse(`Hello {{.Name}},

Thank you for registering to become a poll worker in Warren, CT. To complete your registration, please verify your email address by opening the link below:

{{.VerificationURL}}

This verification link will expire in 48 hours.

If you did not register for poll worker service, please disregard this email.
`))

// Renderer builds verification emails pointing at BaseURL.
type Renderer struct {
	BaseURL string
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{BaseURL: strings.TrimRight(baseURL, "/")}
}

// VerificationURL is the public link that consumes token.
func (r *Renderer) VerificationURL(token string) string {
	return r.BaseURL + "/verify/" + token
}

// Verification renders the email for one applicant.
func (r *Renderer) Verification(name, address, token string) (Message, error) {
	data := verificationData{Name: name, VerificationURL: r.VerificationURL(token)}

	var html, text bytes.Buffer
	if err := verificationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render verification html: %w", err)
	}
	if err := verificationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render verification text: %w", err)
	}
	return Message{
		To:       address,
		Subject:  VerificationSubject,
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}
