package receipts

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/masterco/lahza-server/internal/config"
	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/payments"
)

// SMTPNotifier sends receipt emails over SMTP with STARTTLS auth. An optional
// fixed attachment (access instructions PDF) rides along when configured.
type SMTPNotifier struct {
	cfg      config.ReceiptsConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds a notifier from receipt configuration.
func NewSMTPNotifier(cfg config.ReceiptsConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *SMTPNotifier) Send(ctx context.Context, rec payments.Record) error {
	if rec.Email == "" {
		return errors.New("receipts: record has no email address")
	}

	msg, err := n.buildMessage(rec)
	if err != nil {
		return err
	}

	addr := n.cfg.SMTPHost + ":" + n.cfg.SMTPPort
	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}

	// net/smtp has no context support; run the dial in a goroutine so a
	// cancelled context does not strand the caller.
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, auth, n.cfg.FromEmail, []string{rec.Email}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send receipt: %w", err)
		}
		log.Info().
			Str("reference", rec.Reference).
			Str("email", logger.RedactEmail(rec.Email)).
			Msg("receipt sent")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *SMTPNotifier) buildMessage(rec payments.Record) ([]byte, error) {
	subject := n.cfg.Subject
	if subject == "" {
		subject = "Payment confirmation"
	}
	from := n.cfg.FromEmail
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", n.cfg.FromName), n.cfg.FromEmail)
	}

	body := receiptBody(rec)

	attachment, attachmentName, err := n.loadAttachment()
	if err != nil {
		// A missing instructions file should not block the receipt.
		log.Warn().Err(err).Str("path", n.cfg.AttachmentPath).Msg("receipt attachment unavailable, sending without it")
		attachment = nil
	}

	var buf bytes.Buffer
	write := func(format string, args ...any) {
		fmt.Fprintf(&buf, format, args...)
	}

	write("From: %s\r\n", from)
	write("To: %s\r\n", rec.Email)
	write("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	write("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")

	if attachment == nil {
		write("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		write("%s\r\n", body)
		return buf.Bytes(), nil
	}

	const boundary = "receipt-part-9c41b7"
	write("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	write("%s\r\n", body)

	write("--%s\r\n", boundary)
	write("Content-Type: application/pdf\r\n")
	write("Content-Transfer-Encoding: base64\r\n")
	write("Content-Disposition: attachment; filename=%q\r\n\r\n", attachmentName)

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 76 {
		write("%s\r\n", encoded[:76])
		encoded = encoded[76:]
	}
	write("%s\r\n", encoded)
	write("--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func (n *SMTPNotifier) loadAttachment() ([]byte, string, error) {
	if n.cfg.AttachmentPath == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(n.cfg.AttachmentPath)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(n.cfg.AttachmentPath), nil
}

func receiptBody(rec payments.Record) string {
	var b strings.Builder
	name := rec.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", name)
	b.WriteString("Thank you for your purchase. Your payment was received successfully.\r\n\r\n")
	fmt.Fprintf(&b, "Reference: %s\r\n", rec.Reference)
	if rec.OfferName != "" {
		fmt.Fprintf(&b, "Package: %s\r\n", rec.OfferName)
	}
	fmt.Fprintf(&b, "Amount: %s %s\r\n", rec.Amount.StringFixed(2), rec.Currency)
	if rec.PaidAt != nil {
		fmt.Fprintf(&b, "Paid at: %s\r\n", rec.PaidAt.UTC().Format(time.RFC1123))
	}
	b.WriteString("\r\nKeep this email for your records.\r\n")
	return b.String()
}
