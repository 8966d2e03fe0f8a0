package jobs

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPDeliverer sends mail through a plain SMTP relay.
type SMTPDeliverer struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
}

// Deliver implements Deliverer.
func (d SMTPDeliverer) Deliver(ctx context.Context, payload SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	return smtp.SendMail(addr, d.Auth, d.From, []string{payload.To}, composeMessage(d.From, payload))
}

func composeMessage(from string, payload SendEmailPayload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", payload.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(payload.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(payload.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
