package stock

import (
	"context"
	"fmt"
	"time"

	"fanhub/internal/monitor"
	"fanhub/internal/repository"
	"fanhub/internal/scheduler"
	"fanhub/pkg/log"
)

// JobName is the scheduler job of the periodic check
const JobName = "stock-reconciliation"

// JobScheduler is the part of the scheduler the service needs
type JobScheduler interface {
	Define(name string, handler scheduler.Handler) error
	ScheduleRecurring(ctx context.Context, interval time.Duration, name string, data interface{}) error
}

// StockService compares product stock counters with the stock log. It only
// reports: the stock listener owns the counter and the log together, so a
// difference means something wrote around it.
type StockService interface {
	// CheckStockConsistency checks one product
	CheckStockConsistency(ctx context.Context, productID uint64) (*ConsistencyReport, error)

	// CheckAll checks every physical product and returns the inconsistent ones
	CheckAll(ctx context.Context) ([]*ConsistencyReport, error)

	// StartPeriodicSync registers the recurring check on the scheduler
	StartPeriodicSync(ctx context.Context, interval time.Duration) error
}

// stockService stock service implementation
type stockService struct {
	products  repository.ProductRepository
	stockLogs repository.StockLogRepository
	jobs      JobScheduler
	metrics   *monitor.MetricsCollector
	pageSize  int
	now       func() time.Time
}

// NewStockService creates a stock service
func NewStockService(
	products repository.ProductRepository,
	stockLogs repository.StockLogRepository,
	jobs JobScheduler,
	metrics *monitor.MetricsCollector,
) StockService {
	return &stockService{
		products:  products,
		stockLogs: stockLogs,
		jobs:      jobs,
		metrics:   metrics,
		pageSize:  100,
		now:       time.Now,
	}
}

// ConsistencyReport stock consistency report
type ConsistencyReport struct {
	ProductID    uint64    `json:"product_id"`
	ProductStock int       `json:"product_stock"`
	LoggedStock  int       `json:"logged_stock"`
	HasLog       bool      `json:"has_log"`
	Difference   int       `json:"difference"`
	IsConsistent bool      `json:"is_consistent"`
	CheckTime    time.Time `json:"check_time"`
}

// CheckStockConsistency check stock consistency between the product row and
// its last stock log entry
func (s *stockService) CheckStockConsistency(ctx context.Context, productID uint64) (*ConsistencyReport, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return s.check(ctx, product.ID, product.Stock)
}

func (s *stockService) check(ctx context.Context, productID uint64, stock int) (*ConsistencyReport, error) {
	last, err := s.stockLogs.LastByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last stock log: %w", err)
	}

	report := &ConsistencyReport{
		ProductID:    productID,
		ProductStock: stock,
		CheckTime:    s.now(),
	}
	// a product nobody bought yet has nothing to compare against
	if last == nil {
		report.LoggedStock = stock
		report.IsConsistent = true
		return report, nil
	}

	report.HasLog = true
	report.LoggedStock = last.AfterStock
	report.Difference = stock - last.AfterStock
	report.IsConsistent = report.Difference == 0
	s.metrics.SetStockDrift(productID, report.Difference)

	if !report.IsConsistent {
		log.WithContext(ctx).WithFields(log.Fields{
			"product_id":    productID,
			"product_stock": stock,
			"logged_stock":  last.AfterStock,
			"last_log_id":   last.ID,
			"difference":    report.Difference,
		}).Warn("Stock inconsistency detected")
	}
	return report, nil
}

// CheckAll pages through physical products by id
func (s *stockService) CheckAll(ctx context.Context) ([]*ConsistencyReport, error) {
	var (
		inconsistent []*ConsistencyReport
		afterID      uint64
		checked      int
	)
	for {
		products, err := s.products.ListPhysical(ctx, afterID, s.pageSize)
		if err != nil {
			return inconsistent, fmt.Errorf("failed to list products: %w", err)
		}
		for _, p := range products {
			report, err := s.check(ctx, p.ID, p.Stock)
			if err != nil {
				log.WithContext(ctx).WithError(err).WithField("product_id", p.ID).Error("Failed to check stock consistency")
				continue
			}
			checked++
			if !report.IsConsistent {
				inconsistent = append(inconsistent, report)
			}
		}
		if len(products) < s.pageSize {
			break
		}
		afterID = products[len(products)-1].ID
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"checked":      checked,
		"inconsistent": len(inconsistent),
	}).Info("Stock reconciliation completed")
	return inconsistent, nil
}

// StartPeriodicSync defines the job and puts its first run on the schedule.
// Every instance may call it; the scheduler keeps one pending run.
func (s *stockService) StartPeriodicSync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if err := s.jobs.Define(JobName, func(ctx context.Context, _ *scheduler.Job) error {
		_, err := s.CheckAll(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := s.jobs.ScheduleRecurring(ctx, interval, JobName, nil); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", JobName, err)
	}

	log.WithField("interval", interval).Info("Started periodic stock reconciliation")
	return nil
}
