package service

import (
	"context"
	"fmt"
	"time"

	"busticket/internal/cache"
	apperrors "busticket/internal/errors"
	"busticket/internal/external"
	"busticket/internal/logger"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type PaymentService struct {
	store     repository.Store
	clock     clockwork.Clock
	gateways  *external.Registry
	locker    Locker
	publisher EventPublisher
	timeout   time.Duration
}

func NewPaymentService(store repository.Store, clock clockwork.Clock, gateways *external.Registry, locker Locker, publisher EventPublisher, timeout time.Duration) *PaymentService {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	return &PaymentService{
		store:     store,
		clock:     clock,
		gateways:  gateways,
		locker:    locker,
		publisher: publisher,
		timeout:   timeout,
	}
}

// the lease must outlive a gateway call that runs to its timeout
func (s *PaymentService) lockTTL() time.Duration {
	return s.timeout + 30*time.Second
}

func (s *PaymentService) lock(ctx context.Context, key string) (func(), error) {
	release, ok, err := s.locker.Acquire(ctx, key, s.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, apperrors.Conflict(apperrors.CodePaymentInProgress, "another payment operation is in progress (%s)", key)
	}
	return release, nil
}

// checkPayable enforces the payment preconditions for a ticket. A non-nil
// paid payment means the ticket was already paid for. Cancellation wins over
// an earlier successful payment.
func checkPayable(ctx context.Context, repos *repository.Repositories, ticket *models.Ticket, amount models.Money) (paid *models.Payment, err error) {
	if ticket.IsCancelled {
		return nil, apperrors.BusinessRule(apperrors.CodeCannotPayCancelled, "ticket %s is cancelled", ticket.TicketNumber)
	}

	paid, err = repos.Payments.GetSucceededByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	if paid != nil {
		return paid, nil
	}

	if ticket.IsConfirmed {
		return nil, apperrors.Conflict(apperrors.CodeAlreadyConfirmed, "ticket %s is already confirmed", ticket.TicketNumber)
	}
	if amount.Amount != ticket.Fare.Amount || amount.Currency != ticket.Fare.Currency {
		return nil, apperrors.BusinessRule(apperrors.CodeAmountMismatch,
			"amount %s does not match fare %s", amount, ticket.Fare)
	}
	return nil, nil
}

func alreadyPaid(p *models.Payment) *models.PaymentResult {
	return &models.PaymentResult{
		Success:     true,
		AlreadyPaid: true,
		Message:     "ticket is already paid",
		Payment:     p,
	}
}

// ProcessPayment charges the fare of a booked ticket. The attempt is
// committed as PROCESSING before the gateway is called, so a failed or
// abandoned call always leaves a record behind.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *models.ProcessPaymentRequest) (*models.PaymentResult, error) {
	log := logger.WithContext(ctx)

	method, err := models.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "%s", err.Error())
	}
	gwType, err := models.ParseGatewayType(req.Gateway)
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeUnknownGateway, "%s", err.Error())
	}
	gw, err := s.gateways.Get(gwType)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, "payment:ticket:"+req.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	var details *models.TicketDetails
	var amount models.Money
	var paid *models.Payment
	err = s.store.View(ctx, func(repos *repository.Repositories) error {
		d, err := repos.Tickets.GetDetailsByID(ctx, req.TicketID)
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		if d == nil {
			return apperrors.NotFound(apperrors.CodeTicketNotFound, "ticket %s not found", req.TicketID)
		}
		details = d

		currency := req.Currency
		if currency == "" {
			currency = d.Ticket.Fare.Currency
		}
		amount = models.Money{Amount: req.Amount, Currency: currency}

		paid, err = checkPayable(ctx, repos, &d.Ticket, amount)
		return err
	})
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(string(gwType), outcomeOf(err)).Inc()
		return nil, err
	}
	if paid != nil {
		return alreadyPaid(paid), nil
	}

	if !gw.IsAvailable(ctx) {
		metrics.PaymentsTotal.WithLabelValues(string(gwType), metrics.OutcomeError).Inc()
		return nil, apperrors.Gateway(apperrors.CodeGatewayUnavailable, fmt.Sprintf("gateway %s is unavailable", gwType), nil)
	}

	payment, paid, err := s.startPayment(ctx, req.TicketID, amount, method, gwType)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(string(gwType), outcomeOf(err)).Inc()
		return nil, err
	}
	if paid != nil {
		return alreadyPaid(paid), nil
	}

	log.Info("Payment started",
		"payment_id", payment.ID, "ticket_id", req.TicketID, "transaction_id", payment.TransactionID, "gateway", gwType)

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	resp, callErr := gw.ProcessPayment(gwCtx, external.GatewayPaymentRequest{
		TransactionID: payment.TransactionID,
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		Method:        method,
		Description:   fmt.Sprintf("Bus ticket %s", details.Ticket.TicketNumber),
		Customer: external.CustomerInfo{
			Name:  details.Passenger.Name,
			Phone: details.Passenger.Phone.String(),
			Email: deref(details.Passenger.Email),
		},
	})
	cancel()
	metrics.GatewayLatency.WithLabelValues(string(gwType), string(models.ActionCharge)).Observe(time.Since(start).Seconds())

	// the outcome must be recorded even when the caller has gone away
	outcome, err := s.finishPayment(context.WithoutCancel(ctx), payment.ID, resp, callErr)
	if err != nil {
		log.Error("Failed to record payment outcome",
			"error", err, "payment_id", payment.ID, "transaction_id", payment.TransactionID)
		metrics.PaymentsTotal.WithLabelValues(string(gwType), metrics.OutcomeError).Inc()
		return nil, err
	}

	s.publishOutcome(ctx, outcome)

	switch {
	case callErr != nil:
		metrics.PaymentsTotal.WithLabelValues(string(gwType), metrics.OutcomeError).Inc()
		log.Warn("Payment gateway call failed", "payment_id", payment.ID, "error", callErr)
		return &models.PaymentResult{
			Success: false,
			Message: "payment gateway call failed: " + callErr.Error(),
			Payment: outcome.payment,
		}, apperrors.Gateway(apperrors.CodeGatewayFailure, "payment gateway call failed", callErr)

	case !resp.Success:
		metrics.PaymentsTotal.WithLabelValues(string(gwType), metrics.OutcomeDeclined).Inc()
		log.Info("Payment declined", "payment_id", payment.ID, "response_code", resp.ResponseCode)
		return &models.PaymentResult{
			Success: false,
			Message: declineMessage(resp),
			Payment: outcome.payment,
		}, nil

	default:
		metrics.PaymentsTotal.WithLabelValues(string(gwType), metrics.OutcomeSuccess).Inc()
		msg := "payment completed"
		if outcome.refundRequired {
			msg = "payment completed but the ticket is no longer payable; a refund is required"
			log.Warn("Payment completed for a ticket that cannot be confirmed",
				"payment_id", payment.ID, "ticket_id", req.TicketID)
		} else {
			log.Info("Payment completed", "payment_id", payment.ID, "ticket_id", req.TicketID)
		}
		return &models.PaymentResult{
			Success:        true,
			RefundRequired: outcome.refundRequired,
			Message:        msg,
			Payment:        outcome.payment,
		}, nil
	}
}

func (s *PaymentService) startPayment(ctx context.Context, ticketID string, amount models.Money, method models.PaymentMethod, gwType models.GatewayType) (*models.Payment, *models.Payment, error) {
	var payment, paid *models.Payment

	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		ticket, err := repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("failed to get ticket: %w", err)
		}
		if ticket == nil {
			return apperrors.NotFound(apperrors.CodeTicketNotFound, "ticket %s not found", ticketID)
		}
		if paid, err = checkPayable(ctx, repos, ticket, amount); err != nil || paid != nil {
			return err
		}

		ts := now(s.clock)
		p := &models.Payment{
			ID:            uuid.New().String(),
			TicketID:      ticketID,
			Amount:        amount,
			Method:        method,
			Gateway:       gwType,
			Status:        models.PaymentPending,
			TransactionID: "TXN-" + uuid.New().String(),
			CreatedAt:     ts,
			UpdatedAt:     ts,
		}
		if err := repos.Payments.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		if err := p.MarkProcessing(ts); err != nil {
			return err
		}
		if err := repos.Payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		payment = p
		return nil
	})
	return payment, paid, err
}

type paymentOutcome struct {
	payment        *models.Payment
	confirmed      bool
	refundRequired bool
	failureReason  string
}

func (s *PaymentService) finishPayment(ctx context.Context, paymentID string, resp *external.GatewayResponse, callErr error) (*paymentOutcome, error) {
	out := &paymentOutcome{}

	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		p, err := repos.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if p == nil {
			return fmt.Errorf("payment %s disappeared", paymentID)
		}

		ts := now(s.clock)
		txn := newTransaction(p.ID, models.ActionCharge, p.Amount, resp, callErr, ts)
		if err := repos.Transactions.Append(ctx, txn); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		out.payment = p

		// cancelled by an operator while the gateway call was in flight
		if p.Status != models.PaymentProcessing {
			out.refundRequired = callErr == nil && resp.Success
			logger.WithContext(ctx).Warn("Gateway answered for a payment no longer processing",
				"payment_id", p.ID, "status", p.Status)
			return nil
		}

		switch {
		case callErr != nil:
			out.failureReason = callErr.Error()
			err = p.Fail(out.failureReason, ts)
		case !resp.Success:
			out.failureReason = declineMessage(resp)
			err = p.Fail(out.failureReason, ts)
		default:
			err = p.Complete(resp.GatewayTxnID, ts)
			if err == nil {
				err = s.confirmTicket(ctx, repos, p, ts, out)
			}
		}
		if err != nil {
			return err
		}

		if err := repos.Payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// confirmTicket confirms the ticket and sells its seat. A ticket that was
// cancelled (or confirmed elsewhere) meanwhile is left alone and the payment
// is flagged for refund.
func (s *PaymentService) confirmTicket(ctx context.Context, repos *repository.Repositories, p *models.Payment, ts time.Time, out *paymentOutcome) error {
	ticket, err := repos.Tickets.GetByIDForUpdate(ctx, p.TicketID)
	if err != nil {
		return fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return fmt.Errorf("ticket %s disappeared", p.TicketID)
	}
	if ticket.IsCancelled || ticket.IsConfirmed {
		out.refundRequired = true
		return nil
	}

	if err := ticket.Confirm(ts); err != nil {
		return err
	}
	ticket.UpdatedAt = ts
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	out.confirmed = true

	seat, err := repos.Seats.GetByIDForUpdate(ctx, ticket.SeatID)
	if err != nil {
		return fmt.Errorf("failed to get seat: %w", err)
	}
	if seat == nil || seat.Status != models.SeatBooked || seat.TicketID == nil || *seat.TicketID != ticket.ID {
		logger.WithContext(ctx).Warn("Seat not in booked state at payment, left unchanged",
			"ticket_id", ticket.ID, "seat_id", ticket.SeatID)
		return nil
	}
	if err := seat.ConfirmBooking(); err != nil {
		return err
	}
	seat.UpdatedAt = ts
	if err := repos.Seats.Update(ctx, seat); err != nil {
		return fmt.Errorf("failed to update seat: %w", err)
	}
	return nil
}

func (s *PaymentService) publishOutcome(ctx context.Context, out *paymentOutcome) {
	ts := now(s.clock)
	p := out.payment

	publish := func(subject string, data interface{}) {
		if err := s.publisher.Publish(subject, data); err != nil {
			logger.WithContext(ctx).Error("Failed to publish payment event",
				"error", err, "payment_id", p.ID, "event_type", subject)
		}
	}

	switch p.Status {
	case models.PaymentCompleted:
	case models.PaymentFailed:
		publish(models.EventPaymentFailed, models.PaymentFailedEvent{
			PaymentID: p.ID,
			TicketID:  p.TicketID,
			Reason:    out.failureReason,
			Timestamp: ts,
		})
		return
	default:
		return
	}

	publish(models.EventPaymentCompleted, models.PaymentCompletedEvent{
		PaymentID:     p.ID,
		TicketID:      p.TicketID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		Gateway:       string(p.Gateway),
		Timestamp:     ts,
	})
	if out.confirmed {
		publish(models.EventTicketConfirmed, models.TicketConfirmedEvent{
			TicketID:  p.TicketID,
			PaymentID: p.ID,
			Timestamp: ts,
		})
	}
}

// RefundPayment returns money for a completed payment. It never touches the
// ticket; cancellation is a separate operation.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID string, req *models.RefundPaymentRequest) (*models.RefundResult, error) {
	log := logger.WithContext(ctx)

	release, err := s.lock(ctx, "payment:"+paymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var payment *models.Payment
	err = s.store.View(ctx, func(repos *repository.Repositories) error {
		p, err := repos.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if p == nil {
			return apperrors.NotFound(apperrors.CodePaymentNotFound, "payment %s not found", paymentID)
		}
		payment = p
		trial := *p
		return trial.ApplyRefund(req.Amount, req.Reason, now(s.clock))
	})
	if err != nil {
		if payment != nil {
			metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeRejected).Inc()
		}
		return nil, err
	}

	gw, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	resp, callErr := gw.ProcessRefund(gwCtx, external.GatewayRefundRequest{
		TransactionID: payment.TransactionID,
		GatewayTxnID:  deref(payment.GatewayTxnID),
		Amount:        req.Amount,
		Currency:      payment.Amount.Currency,
		Reason:        req.Reason,
	})
	cancel()
	metrics.GatewayLatency.WithLabelValues(string(payment.Gateway), string(models.ActionRefund)).Observe(time.Since(start).Seconds())

	refund := models.Money{Amount: req.Amount, Currency: payment.Amount.Currency}
	var txn *models.Transaction
	var applyErr error
	finalCtx := context.WithoutCancel(ctx)
	err = s.store.WithinTx(finalCtx, func(repos *repository.Repositories) error {
		p, err := repos.Payments.GetByIDForUpdate(finalCtx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if p == nil {
			return fmt.Errorf("payment %s disappeared", paymentID)
		}

		ts := now(s.clock)
		txn = newTransaction(p.ID, models.ActionRefund, refund, resp, callErr, ts)
		if err := repos.Transactions.Append(finalCtx, txn); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		payment = p

		if callErr != nil || !resp.Success {
			return nil
		}
		// The money has moved; keep the log entry even if the payment
		// can no longer absorb the refund.
		if applyErr = p.ApplyRefund(req.Amount, req.Reason, ts); applyErr != nil {
			return nil
		}
		if err := repos.Payments.Update(finalCtx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to record refund outcome", "error", err, "payment_id", paymentID)
		metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeError).Inc()
		return nil, err
	}
	if applyErr != nil {
		log.Error("Refund settled at gateway but could not be applied",
			"error", applyErr, "payment_id", paymentID, "amount", req.Amount)
		metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeError).Inc()
		return nil, applyErr
	}

	result := &models.RefundResult{Payment: payment, Transaction: txn}
	switch {
	case callErr != nil:
		metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeError).Inc()
		result.Message = "refund gateway call failed: " + callErr.Error()
		return result, apperrors.Gateway(apperrors.CodeGatewayFailure, "refund gateway call failed", callErr)
	case !resp.Success:
		metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeDeclined).Inc()
		result.Message = declineMessage(resp)
		return result, nil
	}

	metrics.RefundsTotal.WithLabelValues(string(payment.Gateway), metrics.OutcomeSuccess).Inc()
	result.Success = true
	result.Message = fmt.Sprintf("refunded %s", refund)
	log.Info("Payment refunded",
		"payment_id", payment.ID, "amount", req.Amount, "refunded_total", payment.RefundedAmount, "status", payment.Status)

	event := models.PaymentRefundedEvent{
		PaymentID:      payment.ID,
		TicketID:       payment.TicketID,
		Amount:         refund,
		RefundedAmount: payment.RefundedAmount,
		Status:         string(payment.Status),
		Timestamp:      now(s.clock),
	}
	if err := s.publisher.Publish(models.EventPaymentRefunded, event); err != nil {
		log.Error("Failed to publish payment refunded event",
			"error", err, "payment_id", payment.ID, "event_type", models.EventPaymentRefunded)
	}
	return result, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.PaymentDetailsResponse, error) {
	var resp *models.PaymentDetailsResponse
	err := s.store.View(ctx, func(repos *repository.Repositories) error {
		p, err := repos.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if p == nil {
			return apperrors.NotFound(apperrors.CodePaymentNotFound, "payment %s not found", paymentID)
		}
		txns, err := repos.Transactions.ListByPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		if txns == nil {
			txns = []models.Transaction{}
		}
		resp = &models.PaymentDetailsResponse{Payment: *p, Transactions: txns}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// VerifyPayment asks the gateway about the payment and logs the answer.
// The payment status is not changed.
func (s *PaymentService) VerifyPayment(ctx context.Context, paymentID string) (*models.Transaction, error) {
	details, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	p := details.Payment

	gw, err := s.gateways.Get(p.Gateway)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	resp, callErr := gw.VerifyPayment(gwCtx, p.TransactionID)
	cancel()
	metrics.GatewayLatency.WithLabelValues(string(p.Gateway), string(models.ActionVerify)).Observe(time.Since(start).Seconds())

	txn := newTransaction(p.ID, models.ActionVerify, p.Amount, resp, callErr, now(s.clock))
	finalCtx := context.WithoutCancel(ctx)
	err = s.store.WithinTx(finalCtx, func(repos *repository.Repositories) error {
		return repos.Transactions.Append(finalCtx, txn)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	if callErr != nil {
		return txn, apperrors.Gateway(apperrors.CodeGatewayFailure, "verify gateway call failed", callErr)
	}
	return txn, nil
}

// CancelPayment abandons a payment that never reached the gateway's verdict.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.WithinTx(ctx, func(repos *repository.Repositories) error {
		p, err := repos.Payments.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if p == nil {
			return apperrors.NotFound(apperrors.CodePaymentNotFound, "payment %s not found", paymentID)
		}
		if err := p.Cancel(now(s.clock)); err != nil {
			return err
		}
		if err := repos.Payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Payment cancelled", "payment_id", payment.ID, "ticket_id", payment.TicketID)
	return payment, nil
}

func newTransaction(paymentID string, action models.TransactionAction, amount models.Money, resp *external.GatewayResponse, callErr error, at time.Time) *models.Transaction {
	txn := &models.Transaction{
		ID:        uuid.New().String(),
		PaymentID: paymentID,
		Action:    action,
		Amount:    amount,
		CreatedAt: at,
	}
	if callErr != nil {
		txn.ResponseCode = "ERROR"
		txn.Message = callErr.Error()
		return txn
	}
	txn.Success = resp.Success
	txn.GatewayTxnID = resp.GatewayTxnID
	txn.ResponseCode = resp.ResponseCode
	txn.Message = resp.Message
	txn.RawPayload = resp.RawPayload
	return txn
}

func declineMessage(resp *external.GatewayResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if resp.ResponseCode != "" {
		return "declined: " + resp.ResponseCode
	}
	return "declined by gateway"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
