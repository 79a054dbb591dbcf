package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"xenial-settlement/internal/logger"
)

type emailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewEmailService(host string, port int, username, password, from string) EmailService {
	return &emailService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *emailService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	logger.ExternalServiceCall("smtp", "send", "to", to, "subject", subject)
	d := gomail.NewDialer(s.host, s.port, s.username, s.password)
	err := d.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "send", err, "to", to)
	if err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return nil
}

func (s *emailService) SendRefundCompletedNotification(ctx context.Context, email, requestNumber string, amount decimal.Decimal, currency string) error {
	subject := fmt.Sprintf("Refund %s completed", requestNumber)
	body := fmt.Sprintf("Refund request %s has been paid out.\n\nAmount refunded: %s %s\n\nThis is an automated settlement notice.",
		requestNumber, amount.StringFixed(2), currency)
	return s.send(email, subject, body)
}

func (s *emailService) SendLowBalanceAlert(ctx context.Context, email, tenantID string, balance, minimum decimal.Decimal) error {
	subject := fmt.Sprintf("Insurance fund low balance - tenant %s", tenantID)
	body := fmt.Sprintf("The insurance fund for tenant %s has dropped below its minimum.\n\nCurrent balance: %s\nMinimum balance: %s\n\nPlease review upcoming refund obligations and schedule a contribution.",
		tenantID, balance.StringFixed(2), minimum.StringFixed(2))
	return s.send(email, subject, body)
}

func (s *emailService) SendShortfallAlert(ctx context.Context, email, tenantID, reference string, shortfall decimal.Decimal) error {
	subject := fmt.Sprintf("Insurance fund shortfall - tenant %s", tenantID)
	body := fmt.Sprintf("A withdrawal exceeded the insurance fund balance for tenant %s.\n\nReference: %s\nUncovered amount: %s\n\nThe refund proceeded; the shortfall must be reconciled manually.",
		tenantID, reference, shortfall.StringFixed(2))
	return s.send(email, subject, body)
}

func (s *emailService) SendIntegrityHoldAlert(ctx context.Context, email, tenantID, detail string) error {
	subject := fmt.Sprintf("Insurance fund placed on hold - tenant %s", tenantID)
	body := fmt.Sprintf("Ledger chain verification failed for tenant %s and the fund is now on hold.\n\nDetail: %s\n\nAll contributions and withdrawals are blocked until the chain is reconciled and the hold is cleared.",
		tenantID, detail)
	return s.send(email, subject, body)
}

func (s *emailService) SendNegotiationClosedNotification(ctx context.Context, email, orderID, vendorID string, status string, finalAmount decimal.Decimal) error {
	subject := fmt.Sprintf("Negotiation %s for order %s", status, orderID)
	body := fmt.Sprintf("The price negotiation with vendor %s on order %s closed as %s.\n\nFinal offer: %s",
		vendorID, orderID, status, finalAmount.StringFixed(2))
	return s.send(email, subject, body)
}
