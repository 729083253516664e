// Package email sends the verification mails over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	if config.FromName == "" {
		config.FromName = "Blogger101"
	}

	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Send delivers a multipart/alternative message with a plain text and an
// HTML part.
func (s *Service) Send(to, subject, text, html string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	boundary := "boundary-blogger101"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", text)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, []string{to}, msg.Bytes())
}

type LinkData struct {
	AppName  string
	UserName string
	Heading  string
	Intro    string
	Action   string
	URL      string
}

func (s *Service) SendSignupConfirmation(to, userName, confirmURL string) error {
	return s.sendLink(to, "Blogger101 Email Confirmation", LinkData{
		UserName: userName,
		Heading:  "Confirm your email",
		Intro:    "Thanks for signing up. Confirm your email address to activate your account.",
		Action:   "Verify Email",
		URL:      confirmURL,
	}, "Go to %s to verify your email")
}

func (s *Service) SendLoginConfirmation(to, userName, confirmURL string) error {
	return s.sendLink(to, "Blogger101 Login Confirmation", LinkData{
		UserName: userName,
		Heading:  "Confirm your login",
		Intro:    "We could not tell whether this login was you. Use the link below to finish signing in.",
		Action:   "Login to Your Account",
		URL:      confirmURL,
	}, "Go to %s to login to your account")
}

func (s *Service) SendPasswordReset(to, userName, resetURL string) error {
	return s.sendLink(to, "Blogger101 Password Change Confirmation", LinkData{
		UserName: userName,
		Heading:  "Password reset request",
		Intro:    "We received a request to change your password.",
		Action:   "Change Password",
		URL:      resetURL,
	}, "Go to %s to change your password")
}

func (s *Service) sendLink(to, subject string, data LinkData, textFormat string) error {
	data.AppName = s.config.FromName
	if data.AppName == "" {
		data.AppName = "Blogger101"
	}
	html, err := renderLink(data)
	if err != nil {
		return fmt.Errorf("render %q template: %w", subject, err)
	}
	return s.Send(strings.TrimSpace(to), subject, fmt.Sprintf(textFormat, data.URL), html)
}

var linkTemplate = template.Must(template.New("email").Parse(linkEmailTemplate))

func renderLink(data LinkData) (string, error) {
	var buf bytes.Buffer
	if err := linkTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const linkEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Heading}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #333; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #333; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.Heading}}</h2>

    {{if .UserName}}<p>Hi {{.UserName}},</p>{{end}}

    <p>{{.Intro}}</p>

    <p>
        <a href="{{.URL}}" class="button">{{.Action}}</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>

    <p>This link expires in 1 hour.</p>

    <div class="footer">
        <p>If you didn't ask for this, you can safely ignore this email.</p>
    </div>
</body>
</html>`
