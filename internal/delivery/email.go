package delivery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/thesislens/constants"
	"github.com/joseph-ayodele/thesislens/internal/common"
)

// Outcome is the delivery result for one recipient.
type Outcome struct {
	Recipient   string `json:"recipient"`
	Success     bool   `json:"success"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Sender transmits one prepared message.
type Sender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPSender dials the configured server for every message. Port 465 uses
// implicit TLS; other ports use mandatory STARTTLS.
type SMTPSender struct {
	cfg common.SMTPConfig
}

func NewSMTPSender(cfg common.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, msg)
}

// Mailer sends the report to each recipient separately, so one bad address
// never affects the others.
type Mailer struct {
	sender      Sender
	from        string
	subject     string
	body        string
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// MailerOption configures a Mailer.
type MailerOption func(*Mailer)

// WithSendTimeout bounds each individual send. Default: 30s.
func WithSendTimeout(d time.Duration) MailerOption {
	return func(m *Mailer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithConcurrency bounds parallel sends. Default: 4.
func WithConcurrency(n int) MailerOption {
	return func(m *Mailer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithMailerLogger(l *slog.Logger) MailerOption {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMailer(sender Sender, from string, opts ...MailerOption) *Mailer {
	m := &Mailer{
		sender:      sender,
		from:        from,
		subject:     constants.ReportEmailSubject,
		body:        constants.ReportEmailBody,
		timeout:     30 * time.Second,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewMailerFromConfig wires the SMTP sender from configuration.
func NewMailerFromConfig(cfg common.SMTPConfig, logger *slog.Logger) *Mailer {
	return NewMailer(NewSMTPSender(cfg), cfg.From,
		WithSendTimeout(cfg.Timeout),
		WithConcurrency(cfg.Concurrency),
		WithMailerLogger(logger),
	)
}

// Send emails pdf to every recipient and returns one Outcome per recipient in
// the same order. It never returns an aggregate error: failures are reported
// per recipient. If ctx is already done nothing is sent.
func (m *Mailer) Send(ctx context.Context, recipients []string, pdf []byte) []Outcome {
	out := make([]Outcome, len(recipients))
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, rcpt := range recipients {
		out[i].Recipient = rcpt
		g.Go(func() error {
			if err := m.sendOne(ctx, rcpt, pdf); err != nil {
				out[i].ErrorDetail = common.UserMessage(err) + ": " + rootCause(err).Error()
				m.logger.Warn("delivery.email.failed",
					"req_id", common.RequestIDFromContext(ctx),
					"recipient", rcpt,
					"error", err,
				)
				return nil
			}
			out[i].Success = true
			m.logger.Info("delivery.email.sent",
				"req_id", common.RequestIDFromContext(ctx),
				"recipient", rcpt,
			)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, o := range out {
		if o.Success {
			ok++
		}
	}
	m.logger.Info("delivery.email.done",
		"req_id", common.RequestIDFromContext(ctx),
		"recipients", len(recipients),
		"sent", ok,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func (m *Mailer) sendOne(ctx context.Context, rcpt string, pdf []byte) error {
	if err := ctx.Err(); err != nil {
		return common.NewDeliveryError("delivery cancelled", err)
	}
	msg, err := m.buildMessage(rcpt, pdf)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.sender.Send(sctx, msg); err != nil {
		return common.NewDeliveryError("email could not be sent", err)
	}
	return nil
}

func (m *Mailer) buildMessage(rcpt string, pdf []byte) (*mail.Msg, error) {
	if err := common.NewValidator().Field("recipient", rcpt, common.Required, common.Email).Err(); err != nil {
		return nil, common.NewDeliveryError("invalid recipient address", err)
	}
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, common.NewDeliveryError("invalid sender address", err)
	}
	if err := msg.To(rcpt); err != nil {
		return nil, common.NewDeliveryError("invalid recipient address", err)
	}
	msg.Subject(m.subject)
	msg.SetBodyString(mail.TypeTextPlain, m.body)
	if err := msg.AttachReader(constants.ReportFilename, bytes.NewReader(pdf),
		mail.WithFileContentType(mail.ContentType(constants.ReportMimeType))); err != nil {
		return nil, common.NewDeliveryError("attachment failed", err)
	}
	return msg, nil
}

// rootCause digs to the innermost error for a readable detail.
func rootCause(err error) error {
	for {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Cause != nil {
			err = appErr.Cause
			continue
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs := joined.Unwrap()
			err = errs[len(errs)-1]
			continue
		}
		return err
	}
}
