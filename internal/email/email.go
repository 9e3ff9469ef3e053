package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"

	"homesentry/internal/config"
)

type Sender struct {
	cfg config.SMTPConfig
}

func NewSender(cfg config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

type alertData struct {
	UserName string
	Subject  string
	Message  string
	AppName  string
}

// SendAlert delivers one alert email over SMTP with STARTTLS (required for
// Gmail relays on port 587).
func (s *Sender) SendAlert(to, userName, subject, message string) error {
	tmpl, err := template.New("alert").Parse(alertTemplate)
	if err != nil {
		return fmt.Errorf("failed to load template: %v", err)
	}

	var htmlBuffer bytes.Buffer
	data := alertData{UserName: userName, Subject: subject, Message: message, AppName: "HomeSentry"}
	if err := tmpl.Execute(&htmlBuffer, data); err != nil {
		return fmt.Errorf("failed to execute template: %v", err)
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	e.To = []string{to}
	e.Subject = subject
	e.HTML = htmlBuffer.Bytes()

	port, _ := strconv.Atoi(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	return e.SendWithStartTLS(
		fmt.Sprintf("%s:%d", s.cfg.Host, port),
		auth,
		&tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: false,
		},
	)
}

const alertTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif; line-height: 1.6; color: #333; background-color: #f8fafc; }
        .container { max-width: 600px; margin: 40px auto; background-color: #ffffff; border-radius: 12px; box-shadow: 0 10px 25px rgba(0, 0, 0, 0.1); overflow: hidden; }
        .header { background: linear-gradient(135deg, #e53e3e 0%, #764ba2 100%); color: white; padding: 32px 28px; text-align: center; }
        .header h1 { font-size: 26px; font-weight: 600; margin: 0; }
        .content { padding: 34px 28px; }
        .greeting { font-size: 18px; margin-bottom: 16px; color: #2d3748; }
        .message { font-size: 16px; color: #4a5568; white-space: pre-wrap; }
        .footer { background-color: #f7fafc; padding: 26px; text-align: center; border-top: 1px solid #e2e8f0; }
        .footer p { font-size: 14px; color: #718096; margin: 0; }
        @media (max-width: 600px) { .container { margin: 20px; border-radius: 8px; } .header, .content, .footer { padding: 22px 18px; } }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.AppName}}</h1>
        </div>
        <div class="content">
            <div class="greeting">Hello {{.UserName}},</div>
            <div class="message">{{.Message}}</div>
        </div>
        <div class="footer">
            <p>This is an automated message, please do not reply.</p>
        </div>
    </div>
</body>
</html>`
