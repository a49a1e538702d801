package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"gymcore/internal/logger"
	"gymcore/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxTries       = 3
)

// Mail types, used as the metrics label.
const (
	TypeGeneric   = "generic"
	TypeReceipt   = "payment_receipt"
	TypeActivated = "subscription_activated"
	TypeRefund    = "refund_issued"
)

type EmailJob struct {
	Type    string    `json:"type"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

type SMTPConfig struct {
	FromEmail string
	FromName  string
	Host      string
	Port      string
	User      string
	Pass      string
}

type Service struct {
	redis      *redis.Client
	cfg        SMTPConfig
	send       func(job EmailJob) error
	retryDelay time.Duration
	now        func() time.Time
}

// New queues mail on rdb; the caller owns the client.
func New(rdb *redis.Client, cfg SMTPConfig) *Service {
	s := &Service{
		redis:      rdb,
		cfg:        cfg,
		retryDelay: 5 * time.Second,
		now:        time.Now,
	}
	s.send = s.sendSMTP
	return s
}

func (s *Service) Send(ctx context.Context, mailType, to, name, subject, body string) error {
	job := EmailJob{
		Type:    mailType,
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: s.now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Error("failed to queue email", "to", to, "type", mailType, "error", err)
		return err
	}

	logger.Info("email queued", "to", to, "type", mailType)
	return nil
}

// Start drains the queue until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("dropping malformed email job", "error", err)
		return
	}
	if job.Type == "" {
		job.Type = TypeGeneric
	}

	job.Tries++
	if err := s.send(job); err != nil {
		logger.Error("failed to send email", "to", job.To, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			time.Sleep(s.retryDelay)
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, string(data))
			return
		}
		metrics.RecordEmail(job.Type, "failed")
		s.saveFailed(job, err)
		return
	}

	metrics.RecordEmail(job.Type, "sent")
	logger.Info("email sent", "to", job.To, "type", job.Type)
}

func (s *Service) sendSMTP(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, s.cfg.FromEmail)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.cfg.User != "" && s.cfg.Pass != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	return smtp.SendMail(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.FromEmail, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(job EmailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  s.now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, string(data))
	logger.Error("email moved to failed queue", "to", job.To, "type", job.Type)
}

// QueueLength reports the pending queue size and publishes it as a gauge.
func (s *Service) QueueLength(ctx context.Context) (int64, error) {
	length, err := s.redis.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, err
	}
	metrics.EmailQueueLength.Set(float64(length))
	return length, nil
}

func (s *Service) SendPaymentReceipt(ctx context.Context, to, name, what string, amount decimal.Decimal, attemptID int, when time.Time) error {
	subject := "Payment received - " + what
	body := fmt.Sprintf(`Hi %s,

We received your payment.

For: %s
Amount: %s VND
Reference: #%d
Date: %s

Thank you for training with us!`, name, what, amount.StringFixed(0), attemptID, when.Format("Jan 2, 2006 at 3:04 PM"))

	return s.Send(ctx, TypeReceipt, to, name, subject, body)
}

func (s *Service) SendSubscriptionActivated(ctx context.Context, to, name string, subscriptionID int) error {
	subject := "Your membership is active"
	body := fmt.Sprintf(`Hi %s,

Your subscription #%d is now active. Show your member card or QR code at the door to check in.

See you at the gym!`, name, subscriptionID)

	return s.Send(ctx, TypeActivated, to, name, subject, body)
}

func (s *Service) SendRefundIssued(ctx context.Context, to, name string, subscriptionID int, amount decimal.Decimal) error {
	subject := "Refund issued"
	body := fmt.Sprintf(`Hi %s,

A refund of %s VND has been issued for your cancelled subscription #%d.`, name, amount.StringFixed(0), subscriptionID)

	return s.Send(ctx, TypeRefund, to, name, subject, body)
}
