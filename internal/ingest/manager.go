// Package ingest turns CFTC reports into engine input rows, one worker task
// per market.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/cftc"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// ExpirySource supplies days to expiry of a market's front contract.
type ExpirySource interface {
	DaysToExpiry(market string, ref time.Time) (int, bool)
}

type Manager struct {
	client  cftc.Client
	expiry  ExpirySource
	workers int
	logger  *zap.Logger
}

type BatchResult struct {
	Total         int
	Success       int
	NotFound      int
	Failed        int
	BadDates      int
	BadNumerics   int
	MissingExpiry int
	Errors        []string
	Rows          []rollpressure.InputRow
}

func NewManager(client cftc.Client, expiry ExpirySource, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		client:  client,
		expiry:  expiry,
		workers: workers,
		logger:  logger,
	}
}

// Execute runs every task. A failing market is recorded in the result and
// does not stop the others. Rows are ordered by market, then date.
func (m *Manager) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.worker(ctx, workerID, jobs, results)
		}(i)
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		result.BadDates += r.Stats.BadDate
		result.BadNumerics += r.Stats.BadNumeric
		result.MissingExpiry += r.MissingExpiry

		switch {
		case r.NotFound:
			result.NotFound++
		case r.Success:
			result.Success++
			result.Rows = append(result.Rows, r.Rows...)
		default:
			result.Failed++
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i], result.Rows[j]
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Date.Before(b.Date)
	})

	return result, nil
}

func (m *Manager) worker(ctx context.Context, id int, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := m.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	m.logger.Info("fetching reports", zap.String("task", task.String()))

	reports, err := m.client.FetchReports(ctx, task.Market, task.Start, task.End)
	if err != nil {
		if errors.Is(err, cftc.ErrNotFound) {
			m.logger.Warn("no reports found", zap.String("task", task.String()))
			result.NotFound = true
			return result
		}
		result.Error = err
		return result
	}

	positions, stats := cftc.Normalize(task.Market, reports)
	result.Stats = stats
	if stats.BadDate > 0 || stats.BadNumeric > 0 {
		m.logger.Warn("malformed report rows",
			zap.String("market", task.Market),
			zap.Int("bad_dates", stats.BadDate),
			zap.Int("bad_numerics", stats.BadNumeric))
	}

	daily := cftc.ForwardFillDaily(positions, task.End)
	rows := make([]rollpressure.InputRow, 0, len(daily))
	for _, p := range daily {
		days, ok := m.expiry.DaysToExpiry(p.Market, p.Date)
		if !ok {
			result.MissingExpiry++
			days = 0
		}
		rows = append(rows, rollpressure.InputRow{
			Date:         p.Date,
			Market:       p.Market,
			SpecNetLong:  p.SpecNetLong,
			OpenInterest: p.OpenInterest,
			DaysToExpiry: days,
		})
	}

	if result.MissingExpiry > 0 {
		m.logger.Warn("no active contract for some dates, using 0 days to expiry",
			zap.String("market", task.Market),
			zap.Int("rows", result.MissingExpiry))
	}

	result.Rows = rows
	result.Success = true
	m.logger.Info("ingested",
		zap.String("task", task.String()),
		zap.Int("reports", stats.Kept),
		zap.Int("rows", len(rows)))

	return result
}
