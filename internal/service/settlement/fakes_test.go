package settlement

import (
	"context"
	"sync"
	"time"

	"fanhub/internal/eventbus"
	"fanhub/internal/model"
	"fanhub/internal/repository"
	"fanhub/pkg/utils"
)

// store is an in-memory ledger shared by the fake repositories
type store struct {
	mu           sync.Mutex
	users        map[uint64]*model.User
	performers   map[uint64]*model.Performer
	products     map[uint64]*model.Product
	videos       map[uint64]*model.Video
	galleries    map[uint64]*model.Gallery
	feeds        map[uint64]*model.Feed
	streams      map[uint64]*model.Stream
	coupons      map[string]*model.Coupon
	convs        []*model.Conversation
	transactions []*model.Transaction

	settleErr error
	createErr error
}

func newStore() *store {
	return &store{
		users:      map[uint64]*model.User{},
		performers: map[uint64]*model.Performer{},
		products:   map[uint64]*model.Product{},
		videos:     map[uint64]*model.Video{},
		galleries:  map[uint64]*model.Gallery{},
		feeds:      map[uint64]*model.Feed{},
		streams:    map[uint64]*model.Stream{},
		coupons:    map[string]*model.Coupon{},
	}
}

func notFound(what string, id uint64) error {
	return utils.Errorf(utils.CodeNotFound, "%s %d not found", what, id)
}

// ledger

type fakeLedger struct{ s *store }

func (l fakeLedger) AdjustBalance(_ context.Context, kind string, id uint64, delta int64) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if kind == model.AccountUser {
		l.s.users[id].Balance += delta
		return l.s.users[id].Balance, nil
	}
	l.s.performers[id].Balance += delta
	return l.s.performers[id].Balance, nil
}

func (l fakeLedger) CreateTransaction(_ context.Context, t *model.Transaction) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.createErr != nil {
		return l.s.createErr
	}
	cp := *t
	l.s.transactions = append(l.s.transactions, &cp)
	return nil
}

func (l fakeLedger) FindTransaction(_ context.Context, buyerID uint64, kind string, targetID uint64) (*model.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	var found *model.Transaction
	for _, t := range l.s.transactions {
		if t.BuyerID != buyerID || t.Type != kind || t.TargetID != targetID || !t.IsSuccess() || t.IsRefund() {
			continue
		}
		if l.refundOf(t.ID) != nil {
			continue
		}
		found = t
	}
	return found, nil
}

func (l fakeLedger) refundOf(id uint64) *model.Transaction {
	for _, t := range l.s.transactions {
		if t.RefundOfID != nil && *t.RefundOfID == id {
			return t
		}
	}
	return nil
}

func (l fakeLedger) FindByRequestID(_ context.Context, requestID string) (*model.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, t := range l.s.transactions {
		if t.RequestID != nil && *t.RequestID == requestID {
			return t, nil
		}
	}
	return nil, nil
}

func (l fakeLedger) GetByID(_ context.Context, id uint64) (*model.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, t := range l.s.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, notFound("transaction", id)
}

func (l fakeLedger) FindRefund(_ context.Context, originalID uint64) (*model.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.refundOf(originalID), nil
}

func (l fakeLedger) HasRedeemedCoupon(_ context.Context, buyerID, couponID uint64) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, t := range l.s.transactions {
		if t.BuyerID == buyerID && t.CouponID != nil && *t.CouponID == couponID && t.IsSuccess() {
			return true, nil
		}
	}
	return false, nil
}

func (l fakeLedger) Settle(ctx context.Context, t *model.Transaction) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.settleErr != nil {
		return l.s.settleErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return utils.NewError(utils.CodeInternalError, "ledger called without a deadline")
	}
	buyer := l.s.users[t.BuyerID]
	if buyer.Balance < t.TotalPrice {
		return utils.ErrInsufficientBalance
	}
	buyer.Balance -= t.TotalPrice
	l.s.performers[t.SellerID].Balance += t.SellerAmount
	if t.CouponID != nil {
		for _, c := range l.s.coupons {
			if c.ID == *t.CouponID {
				c.UsedCount++
			}
		}
	}
	cp := *t
	l.s.transactions = append(l.s.transactions, &cp)
	return nil
}

func (l fakeLedger) Refund(_ context.Context, refund *model.Transaction) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.refundOf(*refund.RefundOfID) != nil {
		return utils.ErrAlreadyRefunded
	}
	seller := l.s.performers[refund.SellerID]
	if seller.Balance < refund.SellerAmount {
		return utils.ErrInsufficientBalance
	}
	seller.Balance -= refund.SellerAmount
	l.s.users[refund.BuyerID].Balance += refund.TotalPrice
	cp := *refund
	l.s.transactions = append(l.s.transactions, &cp)
	return nil
}

// users and performers

type fakeUsers struct{ s *store }

func (u fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, notFound("user", id)
}

type fakePerformers struct{ s *store }

func (p fakePerformers) GetByID(_ context.Context, id uint64) (*model.Performer, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if performer, ok := p.s.performers[id]; ok {
		cp := *performer
		return &cp, nil
	}
	return nil, notFound("performer", id)
}


func (p fakePerformers) SetOnline(context.Context, uint64, bool) error { return nil }

func (p fakePerformers) RemoveCategory(context.Context, uint64, int) (int64, error) { return 0, nil }

// catalog

type fakeProducts struct{ s *store }

func (p fakeProducts) GetByID(_ context.Context, id uint64) (*model.Product, error) {
	if product, ok := p.s.products[id]; ok {
		return product, nil
	}
	return nil, notFound("product", id)
}

func (p fakeProducts) MoveStock(context.Context, repository.StockMovement) (*model.StockLog, error) {
	return nil, nil
}

func (p fakeProducts) ListPhysical(context.Context, uint64, int) ([]*model.Product, error) {
	return nil, nil
}

type fakeCatalog struct{ s *store }

func (c fakeCatalog) GetVideo(_ context.Context, id uint64) (*model.Video, error) {
	if v, ok := c.s.videos[id]; ok {
		return v, nil
	}
	return nil, notFound("video", id)
}

func (c fakeCatalog) GetGallery(_ context.Context, id uint64) (*model.Gallery, error) {
	if g, ok := c.s.galleries[id]; ok {
		return g, nil
	}
	return nil, notFound("gallery", id)
}

func (c fakeCatalog) GetFeed(_ context.Context, id uint64) (*model.Feed, error) {
	if f, ok := c.s.feeds[id]; ok {
		return f, nil
	}
	return nil, notFound("feed", id)
}

func (c fakeCatalog) GetStream(_ context.Context, id uint64) (*model.Stream, error) {
	if s, ok := c.s.streams[id]; ok {
		return s, nil
	}
	return nil, notFound("stream", id)
}

func (c fakeCatalog) GetConversation(_ context.Context, userID, performerID uint64) (*model.Conversation, error) {
	for _, conv := range c.s.convs {
		if conv.UserID == userID && conv.PerformerID == performerID {
			return conv, nil
		}
	}
	return nil, nil
}

func (c fakeCatalog) ApplyLike(context.Context, repository.LikeChange) (bool, error) {
	return true, nil
}

func (c fakeCatalog) StopStreaming(context.Context, uint64) (int64, error) { return 0, nil }

type fakeCoupons struct{ s *store }

func (c fakeCoupons) GetByCode(_ context.Context, code string) (*model.Coupon, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if coupon, ok := c.s.coupons[code]; ok {
		cp := *coupon
		return &cp, nil
	}
	return nil, nil
}

// publisher and ids

type publishedEvent struct {
	channel string
	name    string
	payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, channel, name string, payload interface{}) (eventbus.EnqueueAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return eventbus.EnqueueAck{}, p.err
	}
	p.events = append(p.events, publishedEvent{channel: channel, name: name, payload: payload})
	return eventbus.EnqueueAck{EventID: "evt", MessageID: "1-0"}, nil
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, e := range p.events {
		names = append(names, e.name)
	}
	return names
}

type sequence struct {
	mu   sync.Mutex
	next uint64
}

func (s *sequence) NextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return 1000 + s.next
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
