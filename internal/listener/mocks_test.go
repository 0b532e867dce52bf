package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"fanhub/internal/model"
	"fanhub/internal/notification"
	"fanhub/internal/repository"
)

// MockCatalogRepository is a mock implementation of repository.CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetVideo(ctx context.Context, id uint64) (*model.Video, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Video), args.Error(1)
}

func (m *MockCatalogRepository) GetGallery(ctx context.Context, id uint64) (*model.Gallery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Gallery), args.Error(1)
}

func (m *MockCatalogRepository) GetFeed(ctx context.Context, id uint64) (*model.Feed, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Feed), args.Error(1)
}

func (m *MockCatalogRepository) GetStream(ctx context.Context, id uint64) (*model.Stream, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Stream), args.Error(1)
}

func (m *MockCatalogRepository) GetConversation(ctx context.Context, userID, performerID uint64) (*model.Conversation, error) {
	args := m.Called(ctx, userID, performerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *MockCatalogRepository) ApplyLike(ctx context.Context, change repository.LikeChange) (bool, error) {
	args := m.Called(ctx, change)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) StopStreaming(ctx context.Context, performerID uint64) (int64, error) {
	args := m.Called(ctx, performerID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPerformerRepository is a mock implementation of repository.PerformerRepository
type MockPerformerRepository struct {
	mock.Mock
}

func (m *MockPerformerRepository) GetByID(ctx context.Context, id uint64) (*model.Performer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Performer), args.Error(1)
}

func (m *MockPerformerRepository) SetOnline(ctx context.Context, id uint64, online bool) error {
	return m.Called(ctx, id, online).Error(0)
}

func (m *MockPerformerRepository) RemoveCategory(ctx context.Context, categoryID uint64, batchSize int) (int64, error) {
	args := m.Called(ctx, categoryID, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

// MockPayoutRepository is a mock implementation of repository.PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id uint64) (*model.PayoutRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PayoutRequest), args.Error(1)
}

func (m *MockPayoutRepository) Complete(ctx context.Context, id uint64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockPurchasedItemRepository is a mock implementation of repository.PurchasedItemRepository
type MockPurchasedItemRepository struct {
	mock.Mock
}

func (m *MockPurchasedItemRepository) Grant(ctx context.Context, item *model.PurchasedItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockPurchasedItemRepository) Revoke(ctx context.Context, transactionID uint64) (int64, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPurchasedItemRepository) IsPurchased(ctx context.Context, buyerID uint64, targetType string, targetID uint64) (bool, error) {
	args := m.Called(ctx, buyerID, targetType, targetID)
	return args.Bool(0), args.Error(1)
}

// MockSubscriptionRepository is a mock implementation of repository.SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Get(ctx context.Context, userID, performerID uint64) (*model.Subscription, error) {
	args := m.Called(ctx, userID, performerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Apply(ctx context.Context, g repository.SubscriptionGrant) (bool, error) {
	args := m.Called(ctx, g)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) Revoke(ctx context.Context, transactionID uint64, now time.Time) (int64, error) {
	args := m.Called(ctx, transactionID, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer is a mock implementation of notification.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg *notification.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// stockStore is an in-memory product table with a stock log, enough to
// check redelivery behaviour end to end
type stockStore struct {
	mu    sync.Mutex
	stock map[uint64]int
	// logged quantity per (transaction, operation)
	logged map[[2]uint64]int
}

func newStockStore(stock map[uint64]int) *stockStore {
	return &stockStore{stock: stock, logged: map[[2]uint64]int{}}
}

func (s *stockStore) level(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[id]
}

func (s *stockStore) GetByID(_ context.Context, id uint64) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.Product{ID: id, Type: model.ProductTypePhysical, Stock: s.stock[id]}, nil
}

func (s *stockStore) MoveStock(_ context.Context, m repository.StockMovement) (*model.StockLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]uint64{m.TransactionID, uint64(m.OperationType)}
	if _, ok := s.logged[key]; ok {
		return nil, repository.ErrStockMovementApplied
	}
	before := s.stock[m.ProductID]
	delta := -m.Quantity
	var short error
	if m.OperationType == model.OperationTypeRevert {
		deducted, ok := s.logged[[2]uint64{m.TransactionID, model.OperationTypeDeduct}]
		if !ok {
			return nil, repository.ErrDeductPending
		}
		delta = -deducted
	} else if before+delta < 0 {
		delta = 0
		short = repository.ErrInsufficientStock
	}
	s.logged[key] = delta
	s.stock[m.ProductID] = before + delta
	return &model.StockLog{
		ProductID:     m.ProductID,
		TransactionID: m.TransactionID,
		OperationType: m.OperationType,
		Quantity:      delta,
		BeforeStock:   before,
		AfterStock:    before + delta,
	}, short
}

func (s *stockStore) ListPhysical(context.Context, uint64, int) ([]*model.Product, error) {
	return nil, nil
}

// likeStore applies like changes the way the catalog repository does:
// marker and both counters together, or nothing
type likeStore struct {
	*MockCatalogRepository

	mu        sync.Mutex
	markers   map[string]bool
	objects   map[uint64]int64
	performer map[uint64]int64
	failNext  error
}

func newLikeStore() *likeStore {
	return &likeStore{
		MockCatalogRepository: new(MockCatalogRepository),
		markers:               map[string]bool{},
		objects:               map[uint64]int64{},
		performer:             map[uint64]int64{},
	}
}

func (s *likeStore) ApplyLike(_ context.Context, c repository.LikeChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%d:%s", c.ReactionID, c.Event)
	if s.markers[key] {
		return false, nil
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		return false, err
	}
	s.markers[key] = true
	s.objects[c.ObjectID] += c.Delta
	if c.PerformerID != 0 {
		s.performer[c.PerformerID] += c.Delta
	}
	return true, nil
}

func (s *likeStore) counts(objectID, performerID uint64) (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectID], s.performer[performerID]
}
