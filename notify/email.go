// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// EmailConfig configures SMTP connection and message envelope for Email
// sender.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Subject  string   `yaml:"subject"`
}

// ErrNoRecipients is returned when e-mail configuration has no recipients.
var ErrNoRecipients = errors.New("no e-mail recipients configured")

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends notifications as plain text e-mails over SMTP. It implements
// Sender interface.
type Email struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

// NewEmail creates new Email sender. Non-nil error is returned when
// configuration is incomplete.
func NewEmail(cfg EmailConfig) (*Email, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is empty")
	}
	if len(cfg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "[trends] {{.DagId}} {{.ExecTs}} alert"
	}
	return &Email{cfg: cfg, sendMail: smtp.SendMail}, nil
}

// Send renders the template and sends the message to all configured
// recipients. Subject is also treated as a template.
func (e *Email) Send(ctx context.Context, tmpl Template, data MsgData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("cannot render e-mail body: %w", err)
	}
	subject, sErr := renderSubject(e.cfg.Subject, data)
	if sErr != nil {
		return sErr
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	msg := e.message(subject, body.String())
	if err := e.sendMail(addr, auth, e.cfg.From, e.cfg.To, msg); err != nil {
		return fmt.Errorf("cannot send e-mail via %s: %w", addr, err)
	}
	return nil
}

func (e *Email) message(subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

func renderSubject(subject string, data MsgData) (string, error) {
	tmpl, err := parseText("subject", subject)
	if err != nil {
		return "", fmt.Errorf("invalid e-mail subject template: %w", err)
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("cannot render e-mail subject: %w", err)
	}
	// Header injection guard.
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(out.String()), nil
}
