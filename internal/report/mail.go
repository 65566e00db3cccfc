package report

import (
	"fmt"
	"net/smtp"

	"github.com/hrygo/fedsched/internal/config"
)

// SMTPSettings mirrors the smtp.* config keys.
type SMTPSettings struct {
	Enable     bool
	ServerHost string
	ServerPort int
	User       string
	Password   string
	Receiver   string
}

// SettingsFromConfig reads smtp.* out of cfg.
func SettingsFromConfig(cfg *config.Config) SMTPSettings {
	return SMTPSettings{
		Enable:     cfg.GetBool("smtp.enable"),
		ServerHost: cfg.GetString("smtp.server-host"),
		ServerPort: cfg.GetInt("smtp.server-port"),
		User:       cfg.GetString("smtp.user"),
		Password:   cfg.GetString("smtp.password"),
		Receiver:   cfg.GetString("smtp.receiver"),
	}
}

// Send emails html as the body of a report for groupName. Uses an
// all-or-nothing guard: if any required field is empty, this silently
// succeeds without sending anything — an intentional no-op, not an error,
// for an incompletely configured SMTP block.
func Send(settings SMTPSettings, groupName, html string) error {
	if settings.ServerHost == "" || settings.ServerPort == 0 ||
		settings.User == "" || settings.Password == "" || settings.Receiver == "" {
		return nil
	}

	subject := fmt.Sprintf("Fedsched %s report", groupName)
	msg := buildMessage(settings.User, settings.Receiver, subject, html)

	addr := fmt.Sprintf("%s:%d", settings.ServerHost, settings.ServerPort)
	auth := smtp.PlainAuth("", settings.User, settings.Password, settings.ServerHost)
	return smtp.SendMail(addr, auth, settings.User, []string{settings.Receiver}, []byte(msg))
}

func buildMessage(from, to, subject, html string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"utf-8\"\r\n\r\n%s",
		from, to, subject, html)
}
