// Package settlement turns purchase, tip and refund requests into a
// balanced ledger movement plus a durable transaction record, and
// announces the outcome on the event bus.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"fanhub/internal/event"
	"fanhub/internal/eventbus"
	"fanhub/internal/model"
	"fanhub/internal/monitor"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
	"fanhub/pkg/utils"
)

// Engine settlement engine interface
type Engine interface {
	// Purchase buys a product, video, gallery, feed, stream or subscription
	Purchase(ctx context.Context, req *PurchaseRequest) (*Result, error)

	// Tip transfers tokens to a performer
	Tip(ctx context.Context, req *TipRequest) (*Result, error)

	// Refund reverses a successful transaction
	Refund(ctx context.Context, req *RefundRequest) (*Result, error)

	// Republish emits the settlement event of a stored transaction again
	Republish(ctx context.Context, transactionID uint64) (*Result, error)
}

// IDGenerator hands out transaction ids
type IDGenerator interface {
	NextID() uint64
}

// Dependencies are the stores the engine reads and writes
type Dependencies struct {
	Ledger     repository.LedgerRepository
	Users      repository.UserRepository
	Performers repository.PerformerRepository
	Products   repository.ProductRepository
	Catalog    repository.CatalogRepository
	Coupons    repository.CouponRepository
	Publisher  eventbus.Publisher
	IDs        IDGenerator
}

// engine settlement engine implementation
type engine struct {
	Dependencies
	config  Config
	metrics *monitor.MetricsCollector
	tracer  *monitor.Tracer
	now     func() time.Time
}

// NewEngine creates a settlement engine. metrics and tracer may be nil.
func NewEngine(deps Dependencies, config Config, metrics *monitor.MetricsCollector, tracer *monitor.Tracer) Engine {
	if config.LedgerTimeout <= 0 {
		config.LedgerTimeout = 5 * time.Second
	}
	if config.MaxQuantity <= 0 {
		config.MaxQuantity = 100
	}
	if config.MonthlyPeriod <= 0 {
		config.MonthlyPeriod = 30 * 24 * time.Hour
	}
	if config.YearlyPeriod <= 0 {
		config.YearlyPeriod = 365 * 24 * time.Hour
	}
	return &engine{
		Dependencies: deps,
		config:       config,
		metrics:      metrics,
		tracer:       tracer,
		now:          time.Now,
	}
}

// Purchase settles one purchase
func (e *engine) Purchase(ctx context.Context, req *PurchaseRequest) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.StartSettlementSpan(ctx, req.TargetType, req.BuyerID, req.TargetID)
	defer span.End()

	res, err := e.purchase(ctx, req)
	e.observe(span, req.TargetType, res, err, time.Since(start))
	return res, err
}

func (e *engine) purchase(ctx context.Context, req *PurchaseRequest) (*Result, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.TargetType == model.TransactionTypeSubscription && req.SubscriptionType == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "subscription_type is required")
	}

	logger := log.WithContext(ctx).WithFields(log.Fields{
		"buyer_id":    req.BuyerID,
		"target_type": req.TargetType,
		"target_id":   req.TargetID,
	})

	// 1. Same request id answers with the stored transaction
	if prev, err := e.replay(ctx, req.RequestID, req.BuyerID); err != nil || prev != nil {
		return prev, err
	}

	// 2. Ownership check happens before the target is resolved
	if err := e.checkOwnership(ctx, req.BuyerID, req.TargetType, req.TargetID); err != nil {
		return nil, err
	}

	buyer, err := e.buyer(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}

	// 3. Resolve target and seller
	tgt, err := e.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	seller, err := e.seller(ctx, tgt.sellerID)
	if err != nil {
		return nil, err
	}

	// 4. Price with coupon and quantity
	coupon, err := e.coupon(ctx, req.BuyerID, req.CouponCode)
	if err != nil {
		return nil, err
	}
	discount := 0
	if coupon != nil {
		discount = coupon.DiscountPercentage
	}
	quote, err := Price(tgt.unitPrice, req.Quantity, discount, seller.Commission(e.config.DefaultCommissionBps))
	if err != nil {
		return nil, err
	}

	// 5. Balance check; nothing is recorded when it fails
	if buyer.Balance < quote.TotalPrice {
		logger.WithFields(log.Fields{
			"balance": buyer.Balance,
			"total":   quote.TotalPrice,
		}).Info("Purchase rejected for insufficient balance")
		return nil, utils.Errorf(utils.CodeInsufficientBalance,
			"balance %d is below the price %d", buyer.Balance, quote.TotalPrice)
	}

	t := e.newTransaction(req.RequestID, req.BuyerID, seller.ID, req.TargetType, req.TargetID, quote)
	t.ProductType = tgt.productType
	if coupon != nil {
		t.CouponID = &coupon.ID
		t.CouponCode = &coupon.Code
	}
	if tgt.physical && req.DeliveryAddressID != 0 {
		t.ContextType = ContextDeliveryAddress
		t.ContextID = req.DeliveryAddressID
	}
	if req.TargetType == model.TransactionTypeSubscription {
		t.SubscriptionType = req.SubscriptionType
		expires := t.CreatedAt.Add(e.period(req.SubscriptionType))
		t.ExpiresAt = &expires
	}

	// 6. Ledger unit, then publish
	return e.settle(ctx, t)
}

// Tip settles a direct transfer to a performer
func (e *engine) Tip(ctx context.Context, req *TipRequest) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.StartSettlementSpan(ctx, model.TransactionTypeTip, req.BuyerID, req.PerformerID)
	defer span.End()

	res, err := e.tip(ctx, req)
	e.observe(span, model.TransactionTypeTip, res, err, time.Since(start))
	return res, err
}

func (e *engine) tip(ctx context.Context, req *TipRequest) (*Result, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount < e.config.MinTipAmount {
		return nil, utils.Errorf(utils.CodeInvalidParam, "tip must be at least %d", e.config.MinTipAmount)
	}

	if prev, err := e.replay(ctx, req.RequestID, req.BuyerID); err != nil || prev != nil {
		return prev, err
	}

	buyer, err := e.buyer(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	performer, err := e.seller(ctx, req.PerformerID)
	if err != nil {
		return nil, err
	}
	if err := e.checkTipContext(ctx, req); err != nil {
		return nil, err
	}

	quote, err := Price(req.Amount, 1, 0, performer.Commission(e.config.DefaultCommissionBps))
	if err != nil {
		return nil, err
	}
	if buyer.Balance < quote.TotalPrice {
		return nil, utils.Errorf(utils.CodeInsufficientBalance,
			"balance %d is below the tip %d", buyer.Balance, quote.TotalPrice)
	}

	t := e.newTransaction(req.RequestID, req.BuyerID, performer.ID, model.TransactionTypeTip, performer.ID, quote)
	t.ContextType = req.ContextType
	t.ContextID = req.ContextID
	return e.settle(ctx, t)
}

// Refund reverses a successful transaction with a separate refund record
func (e *engine) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.StartSettlementSpan(ctx, "refund", 0, req.TransactionID)
	defer span.End()

	res, err := e.refund(ctx, req)
	e.observe(span, "refund", res, err, time.Since(start))
	return res, err
}

func (e *engine) refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	original, err := e.Ledger.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if original.IsRefund() {
		return nil, utils.Errorf(utils.CodeInvalidParam, "transaction %d is a refund itself", original.ID)
	}
	if !original.IsSuccess() {
		return nil, utils.Errorf(utils.CodeInvalidParam,
			"transaction %d is %s and cannot be refunded", original.ID, original.Status)
	}

	existing, err := e.Ledger.FindRefund(ctx, original.ID)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to look up refund")
	}
	if existing != nil {
		return nil, utils.Errorf(utils.CodeAlreadyRefunded, "transaction %d already refunded by %d", original.ID, existing.ID)
	}

	refund := *original
	refund.ID = e.IDs.NextID()
	refund.RequestID = nil
	refund.RefundOfID = &original.ID
	refund.CouponID = nil
	refund.CouponCode = nil
	refund.FailureReason = nil
	refund.Status = model.TransactionStatusRefunded
	refund.CreatedAt = e.now()
	refund.UpdatedAt = refund.CreatedAt

	lctx, cancel := context.WithTimeout(ctx, e.config.LedgerTimeout)
	defer cancel()
	if err := e.Ledger.Refund(lctx, &refund); err != nil {
		log.WithContext(ctx).WithError(err).WithField("transaction_id", original.ID).Error("Refund failed")
		return nil, err
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"transaction_id": original.ID,
		"refund_id":      refund.ID,
		"reason":         req.Reason,
	}).Info("Transaction refunded")

	res := resultOf(&refund)
	return e.publish(ctx, event.Refunded, &refund, res)
}

// Republish replays the event matching the stored state of a transaction
func (e *engine) Republish(ctx context.Context, transactionID uint64) (*Result, error) {
	t, err := e.Ledger.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	var name string
	switch {
	case t.IsRefund():
		name = event.Refunded
	case t.Status == model.TransactionStatusSuccess:
		name = event.PurchaseSucceeded
	case t.Status == model.TransactionStatusFailed:
		name = event.PurchaseFailed
	default:
		return nil, utils.Errorf(utils.CodeInvalidParam, "transaction %d is %s, nothing to publish", t.ID, t.Status)
	}

	return e.publish(ctx, name, t, resultOf(t))
}

// replay returns the transaction stored for requestID. A request id owned
// by another buyer is rejected.
func (e *engine) replay(ctx context.Context, requestID string, buyerID uint64) (*Result, error) {
	if requestID == "" {
		return nil, nil
	}
	prev, err := e.Ledger.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to look up request")
	}
	if prev == nil {
		return nil, nil
	}
	if prev.BuyerID != buyerID {
		return nil, utils.Errorf(utils.CodeInvalidParam, "request id %q already used", requestID)
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"request_id":     requestID,
		"transaction_id": prev.ID,
	}).Info("Transaction already exists for request")
	if prev.Status == model.TransactionStatusFailed {
		reason := "ledger transaction failed"
		if prev.FailureReason != nil {
			reason = *prev.FailureReason
		}
		return resultOf(prev), utils.WrapError(errors.New(reason), utils.CodeLedgerTransaction, "ledger transaction failed")
	}
	return resultOf(prev), nil
}

// checkOwnership rejects a second purchase of a target the buyer still owns
func (e *engine) checkOwnership(ctx context.Context, buyerID uint64, kind string, targetID uint64) error {
	prev, err := e.Ledger.FindTransaction(ctx, buyerID, kind, targetID)
	if err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to check previous purchases")
	}
	if prev == nil {
		return nil
	}

	if kind == model.TransactionTypeSubscription {
		if prev.ExpiresAt != nil && e.now().Before(*prev.ExpiresAt) {
			return utils.Errorf(utils.CodeAlreadyPurchased, "subscription active until %s", prev.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	}
	if model.Repeatable(prev.Type, prev.ProductType) {
		return nil
	}
	return utils.Errorf(utils.CodeAlreadyPurchased, "%s %d already purchased", kind, targetID)
}

func (e *engine) buyer(ctx context.Context, id uint64) (*model.User, error) {
	buyer, err := e.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !buyer.IsActive() {
		return nil, utils.Errorf(utils.CodeForbidden, "buyer %d is disabled", id)
	}
	return buyer, nil
}

func (e *engine) seller(ctx context.Context, id uint64) (*model.Performer, error) {
	performer, err := e.Performers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !performer.IsActive() {
		return nil, utils.Errorf(utils.CodeTargetUnavailable, "performer %d is not active", id)
	}
	return performer, nil
}

// resolve loads the target and checks it can be bought
func (e *engine) resolve(ctx context.Context, req *PurchaseRequest) (*target, error) {
	unavailable := func(reason string) error {
		return utils.Errorf(utils.CodeTargetUnavailable, "%s %d %s", req.TargetType, req.TargetID, reason)
	}
	single := func() error {
		if req.Quantity != 1 {
			return utils.Errorf(utils.CodeInvalidParam, "%s can only be bought once", req.TargetType)
		}
		return nil
	}

	switch req.TargetType {
	case model.TransactionTypeProduct:
		p, err := e.Products.GetByID(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		if p.Status != model.StatusActive {
			return nil, unavailable("is not active")
		}
		if !p.IsPhysical() {
			if err := single(); err != nil {
				return nil, err
			}
		} else {
			if req.Quantity > e.config.MaxQuantity {
				return nil, utils.Errorf(utils.CodeInvalidParam, "quantity %d exceeds %d", req.Quantity, e.config.MaxQuantity)
			}
			if p.Stock < req.Quantity {
				return nil, unavailable("is out of stock")
			}
		}
		return &target{sellerID: p.PerformerID, unitPrice: p.Price, productType: p.Type, physical: p.IsPhysical()}, e.priced(p.Price, unavailable)

	case model.TransactionTypeVideo:
		v, err := e.Catalog.GetVideo(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		if v.Status != model.StatusActive || !v.IsSale {
			return nil, unavailable("is not for sale")
		}
		return &target{sellerID: v.PerformerID, unitPrice: v.Price}, firstErr(single(), e.priced(v.Price, unavailable))

	case model.TransactionTypeGallery:
		g, err := e.Catalog.GetGallery(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		if g.Status != model.StatusActive || !g.IsSale {
			return nil, unavailable("is not for sale")
		}
		return &target{sellerID: g.PerformerID, unitPrice: g.Price}, firstErr(single(), e.priced(g.Price, unavailable))

	case model.TransactionTypeFeed:
		f, err := e.Catalog.GetFeed(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		if f.IsSchedule || f.Status != model.StatusActive || !f.IsSale {
			return nil, unavailable("is not for sale")
		}
		return &target{sellerID: f.PerformerID, unitPrice: f.Price}, firstErr(single(), e.priced(f.Price, unavailable))

	case model.TransactionTypeStream:
		s, err := e.Catalog.GetStream(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		if s.IsSchedule || s.Status != model.StatusActive {
			return nil, unavailable("is not available")
		}
		return &target{sellerID: s.PerformerID, unitPrice: s.Price}, firstErr(single(), e.priced(s.Price, unavailable))

	case model.TransactionTypeSubscription:
		p, err := e.Performers.GetByID(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		price := p.MonthlyPrice
		if req.SubscriptionType == model.SubscriptionYearly {
			price = p.YearlyPrice
		}
		return &target{sellerID: p.ID, unitPrice: price}, firstErr(single(), e.priced(price, unavailable))

	default:
		return nil, utils.Errorf(utils.CodeInvalidParam, "unsupported target type %q", req.TargetType)
	}
}

// priced rejects free targets
func (e *engine) priced(price int64, unavailable func(string) error) error {
	if price <= 0 {
		return unavailable("is free")
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// coupon returns the usable coupon with code, nil when code is empty
func (e *engine) coupon(ctx context.Context, buyerID uint64, code string) (*model.Coupon, error) {
	if code == "" {
		return nil, nil
	}

	c, err := e.Coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to load coupon")
	}
	if c == nil || !c.IsUsable(e.now()) {
		return nil, utils.Errorf(utils.CodeCouponInvalid, "coupon %q is not valid", code)
	}

	redeemed, err := e.Ledger.HasRedeemedCoupon(ctx, buyerID, c.ID)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeDatabaseError, "failed to check coupon usage")
	}
	if redeemed {
		return nil, utils.Errorf(utils.CodeCouponInvalid, "coupon %q already redeemed", code)
	}
	return c, nil
}

// checkTipContext makes sure a tip sent from a stream or a conversation
// really happens there
func (e *engine) checkTipContext(ctx context.Context, req *TipRequest) error {
	switch req.ContextType {
	case "":
		return nil

	case TipContextStream:
		s, err := e.Catalog.GetStream(ctx, req.ContextID)
		if err != nil {
			return err
		}
		if s.PerformerID != req.PerformerID || !s.IsStreaming {
			return utils.Errorf(utils.CodeTargetUnavailable, "stream %d is not live for performer %d", s.ID, req.PerformerID)
		}
		return nil

	case TipContextConversation:
		c, err := e.Catalog.GetConversation(ctx, req.BuyerID, req.PerformerID)
		if err != nil {
			return utils.WrapError(err, utils.CodeDatabaseError, "failed to load conversation")
		}
		if c == nil || (req.ContextID != 0 && c.ID != req.ContextID) {
			return utils.Errorf(utils.CodeTargetUnavailable, "no conversation with performer %d", req.PerformerID)
		}
		return nil

	default:
		return utils.Errorf(utils.CodeInvalidParam, "unknown tip context %q", req.ContextType)
	}
}

func (e *engine) period(subscriptionType string) time.Duration {
	if subscriptionType == model.SubscriptionYearly {
		return e.config.YearlyPeriod
	}
	return e.config.MonthlyPeriod
}

func (e *engine) newTransaction(requestID string, buyerID, sellerID uint64, kind string, targetID uint64, q Quote) *model.Transaction {
	now := e.now()
	t := &model.Transaction{
		ID:               e.IDs.NextID(),
		BuyerID:          buyerID,
		SellerID:         sellerID,
		Type:             kind,
		TargetID:         targetID,
		Quantity:         q.Quantity,
		UnitPrice:        q.UnitPrice,
		OriginalPrice:    q.OriginalPrice,
		DiscountAmount:   q.DiscountAmount,
		TotalPrice:       q.TotalPrice,
		SellerAmount:     q.SellerAmount,
		CommissionAmount: q.CommissionAmount,
		CommissionBps:    q.CommissionBps,
		Status:           model.TransactionStatusSuccess,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if requestID != "" {
		t.RequestID = &requestID
	}
	return t
}

// settle runs the ledger unit under the ledger timeout. A store failure
// is recorded as a failed transaction and announced as PurchaseFailed;
// domain rejections leave no record at all.
func (e *engine) settle(ctx context.Context, t *model.Transaction) (*Result, error) {
	lctx, cancel := context.WithTimeout(ctx, e.config.LedgerTimeout)
	err := e.Ledger.Settle(lctx, t)
	cancel()

	if err == nil {
		log.WithContext(ctx).WithFields(log.Fields{
			"transaction_id": t.ID,
			"type":           t.Type,
			"total":          t.TotalPrice,
			"seller_amount":  t.SellerAmount,
		}).Info("Transaction settled")
		return e.publish(ctx, event.PurchaseSucceeded, t, resultOf(t))
	}

	if !errors.Is(err, utils.ErrLedgerTransaction) {
		return nil, err
	}

	log.WithContext(ctx).WithError(err).WithField("transaction_id", t.ID).Error("Ledger transaction failed")

	reason := err.Error()
	if len(reason) > 255 {
		reason = reason[:255]
	}
	t.Status = model.TransactionStatusFailed
	t.FailureReason = &reason
	if cerr := e.Ledger.CreateTransaction(context.WithoutCancel(ctx), t); cerr != nil {
		log.WithContext(ctx).WithError(cerr).WithField("transaction_id", t.ID).Error("Failed to record failed transaction")
		return nil, err
	}

	res := resultOf(t)
	if _, perr := e.publish(ctx, event.PurchaseFailed, t, res); perr != nil {
		log.WithContext(ctx).WithError(perr).WithField("transaction_id", t.ID).Warn("Failed to publish purchase failure")
	}
	return res, err
}

// publish announces t. The settlement already stands, so a delivery error
// is returned together with the result.
func (e *engine) publish(ctx context.Context, name string, t *model.Transaction, res *Result) (*Result, error) {
	ack, err := e.Publisher.Publish(ctx, event.ChannelTransaction, name, Snapshot(t))
	if err != nil {
		log.WithContext(ctx).WithError(err).WithFields(log.Fields{
			"transaction_id": t.ID,
			"event":          name,
		}).Error("Failed to publish settlement event, republish it manually")
		return res, fmt.Errorf("transaction %d stored: %w", t.ID, err)
	}
	res.EventID = ack.EventID
	return res, nil
}

func (e *engine) observe(span oteltrace.Span, kind string, res *Result, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case res != nil && res.Status == model.TransactionStatusFailed:
		status = "failed"
	case err != nil && res == nil:
		status = "rejected"
	case err != nil:
		status = "undelivered"
	}
	if err != nil {
		e.tracer.RecordError(span, err)
	}

	e.metrics.RecordSettlement(kind, status, elapsed)
	if status == "ok" && res != nil && res.Transaction != nil {
		e.metrics.RecordSettledAmounts(kind, res.TotalPrice, res.SellerAmount, res.CommissionAmount)
	}
}

// Snapshot builds the event payload of a transaction
func Snapshot(t *model.Transaction) *event.TransactionPayload {
	p := &event.TransactionPayload{
		TransactionID:    t.ID,
		RefundOfID:       t.RefundOfID,
		BuyerID:          t.BuyerID,
		SellerID:         t.SellerID,
		Type:             t.Type,
		TargetID:         t.TargetID,
		ProductType:      t.ProductType,
		SubscriptionType: t.SubscriptionType,
		Quantity:         t.Quantity,
		TotalPrice:       t.TotalPrice,
		SellerAmount:     t.SellerAmount,
		CommissionAmount: t.CommissionAmount,
		Status:           t.Status,
		ExpiresAt:        t.ExpiresAt,
	}
	if t.FailureReason != nil {
		p.FailureReason = *t.FailureReason
	}
	return p
}
