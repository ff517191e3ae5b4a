package scheduler

import (
	"context"
	"time"

	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/notifier"

	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

// Fetcher loads one product page and extracts its record
type Fetcher interface {
	FetchOne(ctx context.Context, url string) (models.ExtractedRecord, error)
}

// ItemWriter is the single-writer path for refresh mutations
type ItemWriter interface {
	Apply(id string, price float64, imageURL string) (models.AppendResult, string, error)
	Flush(ctx context.Context) error
}

// CycleRunner runs one refresh cycle
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger models.Trigger, items []models.MonitoredItem, progress func(done, total int)) models.RunResult
}

// Orchestrator drives extraction across monitored items, applies the
// observed prices and reports drops
type Orchestrator struct {
	// gate admits one cycle fetch at a time across every caller of RunCycle
	gate     chan struct{}
	fetcher  Fetcher
	writer   ItemWriter
	notifier notifier.Notifier
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(fetcher Fetcher, writer ItemWriter, n notifier.Notifier, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		gate:     make(chan struct{}, 1),
		fetcher:  fetcher,
		writer:   writer,
		notifier: n,
		logger:   logger,
	}
}

// RunCycle refreshes items sequentially in input order. Concurrent cycles
// share one fetch slot, so a site never sees two cycle requests in flight.
// A failing item is recorded and skipped. ctx is checked between items; once it is done the
// cycle stops and reports CancelledPartial. Applied updates are flushed even
// when the cycle was cancelled.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger models.Trigger, items []models.MonitoredItem, progress func(done, total int)) models.RunResult {
	result := models.RunResult{
		Trigger:   trigger,
		Status:    models.RunCompleted,
		Updated:   []string{},
		Unchanged: []string{},
		Dropped:   []models.PriceDrop{},
		Failed:    []models.ItemFailure{},
		StartedAt: time.Now(),
	}

	planned := make([]models.MonitoredItem, 0, len(items))
	for _, item := range items {
		if item.IsMonitoring {
			planned = append(planned, item)
		}
	}

	log := o.logger.With(zap.String("trigger", string(trigger)))
	log.Info("Refresh cycle started", zap.Int("items", len(planned)))

	for i, item := range planned {
		if ctx.Err() != nil || !o.acquireFetch(ctx) {
			result.Status = models.RunCancelledPartial
			break
		}

		if !o.refreshItem(ctx, item, &result) {
			result.Status = models.RunCancelledPartial
			break
		}
		if progress != nil {
			progress(i+1, len(planned))
		}
	}

	if err := o.writer.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Error("Failed to persist refresh results", zap.Error(err))
	}

	o.notifyDrops(ctx, result.Dropped)

	result.FinishedAt = time.Now()
	metrics.CyclesTotal.WithLabelValues(string(trigger), string(result.Status)).Inc()
	log.Info("Refresh cycle finished",
		zap.String("status", string(result.Status)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("dropped", len(result.Dropped)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))
	return result
}

// acquireFetch waits for the fetch slot. It reports false when ctx ends
// first; the item has not been started then.
func (o *Orchestrator) acquireFetch(ctx context.Context) bool {
	select {
	case o.gate <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		<-o.gate
		return false
	}
	return true
}

// refreshItem fetches and applies one item; the caller holds the fetch slot,
// which is released once the fetch returns. It returns false when the cycle
// was cancelled while the fetch was in flight.
func (o *Orchestrator) refreshItem(ctx context.Context, item models.MonitoredItem, result *models.RunResult) bool {
	log := o.logger.With(zap.String("item_id", item.ID), zap.String("url", item.SourceURL))

	rec, err := o.fetch(ctx, item.SourceURL)
	if ctx.Err() != nil {
		// the in-flight fetch is abandoned
		o.fail(result, item.ID, models.KindTimeout, "cycle expired during fetch")
		log.Warn("Fetch abandoned, cycle expired")
		return false
	}
	if err != nil {
		o.fail(result, item.ID, models.KindOf(err), err.Error())
		log.Warn("Failed to refresh item", zap.Error(err))
		return true
	}
	if !rec.PriceFound {
		o.fail(result, item.ID, models.KindParsing, "no price found on page")
		log.Warn("No price found on page")
		return true
	}

	res, name, err := o.writer.Apply(item.ID, rec.Price, rec.ImageURL)
	if err != nil {
		// deleted while the cycle was running
		o.fail(result, item.ID, models.KindUnknown, err.Error())
		log.Info("Item vanished during refresh", zap.Error(err))
		return true
	}

	if !res.Changed {
		result.Unchanged = append(result.Unchanged, item.ID)
		metrics.ItemChecks.WithLabelValues("unchanged").Inc()
		return true
	}

	result.Updated = append(result.Updated, item.ID)
	metrics.ItemChecks.WithLabelValues("updated").Inc()
	if res.Dropped {
		result.Dropped = append(result.Dropped, models.PriceDrop{
			ItemID:   item.ID,
			Name:     name,
			OldPrice: res.OldPrice,
			NewPrice: res.NewPrice,
		})
		metrics.PriceDrops.Inc()
	}
	log.Info("Price changed", zap.Float64("old_price", res.OldPrice), zap.Float64("new_price", res.NewPrice))
	return true
}

func (o *Orchestrator) fetch(ctx context.Context, url string) (models.ExtractedRecord, error) {
	defer func() { <-o.gate }()
	return o.fetcher.FetchOne(ctx, url)
}

func (o *Orchestrator) fail(result *models.RunResult, id string, kind models.ErrorKind, msg string) {
	result.Failed = append(result.Failed, models.ItemFailure{ItemID: id, Kind: kind, Message: msg})
	metrics.ItemChecks.WithLabelValues("failed").Inc()
}

func (o *Orchestrator) notifyDrops(ctx context.Context, drops []models.PriceDrop) {
	if o.notifier == nil || len(drops) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, d := range drops {
		if err := o.notifier.Notify(nctx, d.Name, d.OldPrice, d.NewPrice); err != nil {
			o.logger.Warn("Failed to deliver price drop", zap.String("item_id", d.ItemID), zap.Error(err))
		}
	}
}
