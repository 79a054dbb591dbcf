package service

import (
	"context"
	"fmt"
	"time"

	"xenial-settlement/internal/config"
	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/logger"
	"xenial-settlement/internal/repository"
)

type negotiationService struct {
	negotiationRepo repository.NegotiationRepository
	orderRepo       repository.OrderRepository
	noteRepo        repository.NotificationRepository
	emailSvc        EmailService

	defaultExpiry time.Duration
	alertEmail    string
}

func NewNegotiationService(
	negotiationRepo repository.NegotiationRepository,
	orderRepo repository.OrderRepository,
	noteRepo repository.NotificationRepository,
	emailSvc EmailService,
	cfg *config.Config,
) NegotiationService {
	return &negotiationService{
		negotiationRepo: negotiationRepo,
		orderRepo:       orderRepo,
		noteRepo:        noteRepo,
		emailSvc:        emailSvc,
		defaultExpiry:   time.Duration(cfg.Negotiation.DefaultExpiryDays) * 24 * time.Hour,
		alertEmail:      cfg.SMTP.FinanceAlertEmail,
	}
}

func (s *negotiationService) CreateNegotiation(ctx context.Context, tenantID string, in CreateNegotiationInput) (*domain.OrderVendorNegotiation, error) {
	if !in.InitialOffer.IsPositive() {
		return nil, &domain.ValidationError{Field: "initial_offer", Reason: "must be positive"}
	}
	if in.VendorID == "" {
		return nil, &domain.ValidationError{Field: "vendor_id", Reason: "is required"}
	}
	order, err := s.orderRepo.GetByID(ctx, tenantID, in.OrderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.defaultExpiry)
	if in.ExpiresAt != nil {
		if in.ExpiresAt.Before(now) {
			return nil, &domain.ValidationError{Field: "expires_at", Reason: "must be in the future"}
		}
		expiresAt = *in.ExpiresAt
	}
	currency := in.Currency
	if currency == "" {
		currency = order.Currency
	}

	n := &domain.OrderVendorNegotiation{
		TenantID:     tenantID,
		OrderID:      order.ID,
		VendorID:     in.VendorID,
		Status:       domain.NegotiationStatusDraft,
		InitialOffer: in.InitialOffer,
		LatestOffer:  in.InitialOffer,
		Currency:     currency,
		QuoteDetails: in.QuoteDetails,
		Round:        0,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.negotiationRepo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// SendNegotiation moves a draft to sent, opening round 1 with the initial
// offer as the first history entry.
func (s *negotiationService) SendNegotiation(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error) {
	n, err := s.negotiationRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.NegotiationStatusDraft {
		return nil, fmt.Errorf("%w: negotiation %s is %s, not draft", domain.ErrInvalidTransition, n.ID, n.Status)
	}

	now := time.Now()
	offer := n.InitialOffer
	n.Status = domain.NegotiationStatusSent
	n.Round = 1
	n.History = append(n.History, domain.NegotiationHistoryEntry{
		Event:      domain.NegotiationEventInitialOffer,
		Actor:      domain.NegotiationPartyCustomer,
		Amount:     &offer,
		Round:      1,
		Notes:      n.QuoteDetails.Notes,
		OccurredAt: now,
	})
	n.UpdatedAt = now
	if err := s.negotiationRepo.Update(ctx, n, domain.NegotiationStatusDraft, 0); err != nil {
		return nil, err
	}
	s.notifyVendor(ctx, n, fmt.Sprintf("New offer of %s %s on order %s", n.LatestOffer.StringFixed(2), n.Currency, n.OrderID))
	return n, nil
}

// expireIfStale observes a passed deadline lazily: the row is marked
// expired and the caller's operation is rejected.
func (s *negotiationService) expireIfStale(ctx context.Context, n *domain.OrderVendorNegotiation, now time.Time) (bool, error) {
	if !n.Expired(now) {
		return false, nil
	}
	fromStatus, fromRound := n.Status, n.Round
	closed := now
	n.Status = domain.NegotiationStatusExpired
	n.ClosedAt = &closed
	n.UpdatedAt = now
	n.History = append(n.History, domain.NegotiationHistoryEntry{
		Event:      domain.NegotiationEventExpired,
		Actor:      domain.NegotiationPartyCustomer,
		Round:      n.Round,
		OccurredAt: now,
	})
	if err := s.negotiationRepo.Update(ctx, n, fromStatus, fromRound); err != nil {
		return false, err
	}
	logger.Info("negotiation expired", "negotiation_id", n.ID, "order_id", n.OrderID)
	return true, nil
}

func (s *negotiationService) SubmitCounterOffer(ctx context.Context, tenantID, id string, in CounterOfferInput) (*domain.OrderVendorNegotiation, error) {
	if !in.Actor.Valid() {
		return nil, &domain.ValidationError{Field: "actor", Reason: fmt.Sprintf("unknown party %q", in.Actor)}
	}
	if !in.Amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	n, err := s.negotiationRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if expired, err := s.expireIfStale(ctx, n, now); err != nil {
		return nil, err
	} else if expired {
		return nil, fmt.Errorf("%w: negotiation %s expired at %s", domain.ErrNegotiationClosed, n.ID, n.ExpiresAt.Format(time.RFC3339))
	}
	if n.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: negotiation %s is %s", domain.ErrNegotiationClosed, n.ID, n.Status)
	}
	if !n.Status.Open() {
		return nil, fmt.Errorf("%w: negotiation %s has not been sent", domain.ErrInvalidTransition, n.ID)
	}
	if n.Round != in.ExpectedRound {
		return nil, fmt.Errorf("%w: negotiation %s is at round %d, caller saw round %d",
			domain.ErrConcurrentModification, n.ID, n.Round, in.ExpectedRound)
	}

	fromStatus, fromRound := n.Status, n.Round
	n.Status = domain.NegotiationStatusCountered
	n.Round = fromRound + 1
	n.LatestOffer = in.Amount
	n.History = append(n.History, domain.NegotiationHistoryEntry{
		Event:      domain.NegotiationEventCounterOffer,
		Actor:      in.Actor,
		Amount:     &in.Amount,
		Round:      n.Round,
		Notes:      in.Notes,
		OccurredAt: now,
	})
	n.UpdatedAt = now
	if err := s.negotiationRepo.Update(ctx, n, fromStatus, fromRound); err != nil {
		return nil, err
	}

	// countered is transient: once the counterpart notification is on
	// record the row waits in pending_response.
	if in.Actor == domain.NegotiationPartyVendor {
		s.notifyCustomer(ctx, n, fmt.Sprintf("Vendor countered with %s %s on order %s", in.Amount.StringFixed(2), n.Currency, n.OrderID))
	} else {
		s.notifyVendor(ctx, n, fmt.Sprintf("Counter-offer of %s %s on order %s", in.Amount.StringFixed(2), n.Currency, n.OrderID))
	}
	n.Status = domain.NegotiationStatusPendingResponse
	n.UpdatedAt = time.Now()
	if err := s.negotiationRepo.Update(ctx, n, domain.NegotiationStatusCountered, n.Round); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *negotiationService) AcceptOffer(ctx context.Context, tenantID, id string, expectedRound int32, actor domain.NegotiationParty, notes string) (*domain.OrderVendorNegotiation, error) {
	return s.close(ctx, tenantID, id, expectedRound, actor, notes, domain.NegotiationStatusAccepted, domain.NegotiationEventAccepted)
}

func (s *negotiationService) RejectOffer(ctx context.Context, tenantID, id string, expectedRound int32, actor domain.NegotiationParty, notes string) (*domain.OrderVendorNegotiation, error) {
	return s.close(ctx, tenantID, id, expectedRound, actor, notes, domain.NegotiationStatusRejected, domain.NegotiationEventRejected)
}

func (s *negotiationService) close(ctx context.Context, tenantID, id string, expectedRound int32, actor domain.NegotiationParty, notes string, terminal domain.NegotiationStatus, event domain.NegotiationEvent) (*domain.OrderVendorNegotiation, error) {
	if !actor.Valid() {
		return nil, &domain.ValidationError{Field: "actor", Reason: fmt.Sprintf("unknown party %q", actor)}
	}
	n, err := s.negotiationRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if expired, err := s.expireIfStale(ctx, n, now); err != nil {
		return nil, err
	} else if expired {
		return nil, fmt.Errorf("%w: negotiation %s expired at %s", domain.ErrNegotiationClosed, n.ID, n.ExpiresAt.Format(time.RFC3339))
	}
	if n.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: negotiation %s is %s", domain.ErrNegotiationClosed, n.ID, n.Status)
	}
	if !n.Status.Open() {
		return nil, fmt.Errorf("%w: negotiation %s has not been sent", domain.ErrInvalidTransition, n.ID)
	}
	if n.Round != expectedRound {
		return nil, fmt.Errorf("%w: negotiation %s is at round %d, caller saw round %d",
			domain.ErrConcurrentModification, n.ID, n.Round, expectedRound)
	}

	fromStatus, fromRound := n.Status, n.Round
	n.Status = terminal
	n.ClosedAt = &now
	n.UpdatedAt = now
	n.History = append(n.History, domain.NegotiationHistoryEntry{
		Event:      event,
		Actor:      actor,
		Round:      n.Round,
		Notes:      notes,
		OccurredAt: now,
	})
	if err := s.negotiationRepo.Update(ctx, n, fromStatus, fromRound); err != nil {
		return nil, err
	}

	if terminal == domain.NegotiationStatusAccepted {
		// The accepted amount is the order's locked-in vendor cost; the
		// order side consumes it from this event.
		s.notifyCustomer(ctx, n, fmt.Sprintf("Vendor cost locked at %s %s for order %s", n.LatestOffer.StringFixed(2), n.Currency, n.OrderID))
	}
	if s.alertEmail != "" {
		if mailErr := s.emailSvc.SendNegotiationClosedNotification(ctx, s.alertEmail, n.OrderID, n.VendorID, string(terminal), n.LatestOffer); mailErr != nil {
			logger.Warn("failed to send negotiation closed email", "negotiation_id", n.ID, "error", mailErr)
		}
	}
	return n, nil
}

func (s *negotiationService) GetNegotiation(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error) {
	n, err := s.negotiationRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.expireIfStale(ctx, n, time.Now()); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *negotiationService) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error) {
	return s.negotiationRepo.ListByOrder(ctx, tenantID, orderID)
}

// ExpireStale sweeps open negotiations whose deadline has passed. Rows
// that lose the swap were touched concurrently and are left for the next
// sweep.
func (s *negotiationService) ExpireStale(ctx context.Context, asOf time.Time) (int32, error) {
	candidates, err := s.negotiationRepo.ListExpiredCandidates(ctx, asOf, 500)
	if err != nil {
		return 0, err
	}
	var expired int32
	for i := range candidates {
		n := candidates[i]
		done, err := s.expireIfStale(ctx, &n, asOf)
		if err != nil {
			logger.Warn("failed to expire negotiation", "negotiation_id", n.ID, "error", err)
			continue
		}
		if done {
			expired++
		}
	}
	return expired, nil
}

func (s *negotiationService) notifyVendor(ctx context.Context, n *domain.OrderVendorNegotiation, message string) {
	s.notify(ctx, n, n.VendorID, message)
}

func (s *negotiationService) notifyCustomer(ctx context.Context, n *domain.OrderVendorNegotiation, message string) {
	s.notify(ctx, n, n.TenantID, message)
}

func (s *negotiationService) notify(ctx context.Context, n *domain.OrderVendorNegotiation, recipientID, message string) {
	note := &domain.Notification{
		TenantID:    n.TenantID,
		RecipientID: recipientID,
		Title:       "Vendor negotiation update",
		Message:     message,
		Attributes: map[string]string{
			"type":           "NEGOTIATION",
			"negotiation_id": n.ID,
			"order_id":       n.OrderID,
			"status":         string(n.Status),
		},
	}
	if err := s.noteRepo.Create(ctx, note); err != nil {
		logger.Warn("failed to record negotiation notification", "negotiation_id", n.ID, "error", err)
	}
}
