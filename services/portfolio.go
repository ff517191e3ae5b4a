package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/repository"

	"go.uber.org/zap"
)

// Portfolio is the single writer of the monitored item collection. Every
// mutation, from manual and periodic refreshes alike, goes through its lock,
// so concurrent callers queue instead of racing.
type Portfolio struct {
	mu     sync.Mutex
	store  repository.Store
	items  map[string]*models.MonitoredItem
	order  []string
	dirty  map[string]struct{}
	now    func() time.Time
	logger *zap.Logger
}

// NewPortfolio creates an empty portfolio backed by store
func NewPortfolio(store repository.Store, logger *zap.Logger) *Portfolio {
	return &Portfolio{
		store:  store,
		items:  make(map[string]*models.MonitoredItem),
		dirty:  make(map[string]struct{}),
		now:    time.Now,
		logger: logger,
	}
}

// SetClock replaces the time source
func (p *Portfolio) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Load replaces the in-memory collection with the store's contents
func (p *Portfolio) Load(ctx context.Context) error {
	items, err := p.store.FetchMonitored(ctx)
	if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]*models.MonitoredItem, len(items))
	p.order = p.order[:0]
	p.dirty = make(map[string]struct{})
	for i := range items {
		item := items[i]
		p.items[item.ID] = &item
		p.order = append(p.order, item.ID)
	}
	metrics.MonitoredItems.Set(float64(len(p.items)))
	p.logger.Info("Portfolio loaded", zap.Int("items", len(items)))
	return nil
}

// Snapshot returns copies of all items in stable order
func (p *Portfolio) Snapshot() []models.MonitoredItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.MonitoredItem, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.items[id].Clone())
	}
	return out
}

// Get returns a copy of one item
func (p *Portfolio) Get(id string) (models.MonitoredItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return models.MonitoredItem{}, models.ErrItemNotFound
	}
	return *item.Clone(), nil
}

// Track registers a new item from a fetched record
func (p *Portfolio) Track(ctx context.Context, sourceURL string, rec models.ExtractedRecord, target *float64) (models.MonitoredItem, error) {
	if !rec.PriceFound {
		return models.MonitoredItem{}, models.NewFetchError(models.KindParsing, sourceURL, fmt.Errorf("no price found on page"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := models.Register(sourceURL, p.snapshotLocked()); err != nil {
		return models.MonitoredItem{}, err
	}

	item := models.NewMonitoredItem(sourceURL, rec, p.now())
	item.TargetPrice = target
	if err := p.store.Insert(ctx, *item); err != nil {
		return models.MonitoredItem{}, err
	}

	p.items[item.ID] = item
	p.order = append(p.order, item.ID)
	metrics.MonitoredItems.Set(float64(len(p.items)))
	p.logger.Info("Tracking new item",
		zap.String("id", item.ID),
		zap.String("name", item.Name),
		zap.Float64("price", item.CurrentPrice))
	return *item.Clone(), nil
}

// Apply feeds an observed price into the item's history. The change is
// persisted by the next Flush. An item paused since the cycle was planned
// is left untouched and reported unchanged.
func (p *Portfolio) Apply(id string, price float64, imageURL string) (models.AppendResult, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return models.AppendResult{}, "", models.ErrItemNotFound
	}
	if !item.IsMonitoring {
		return models.AppendResult{OldPrice: item.CurrentPrice, NewPrice: item.CurrentPrice}, item.Name, nil
	}
	res := item.Append(price, imageURL, p.now())
	p.dirty[id] = struct{}{}
	return res, item.Name, nil
}

// Flush saves every item changed since the last flush in one Save call
func (p *Portfolio) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dirty) == 0 {
		return nil
	}

	batch := make([]models.MonitoredItem, 0, len(p.dirty))
	for _, id := range p.order {
		if _, ok := p.dirty[id]; ok {
			batch = append(batch, *p.items[id].Clone())
		}
	}
	if err := p.store.Save(ctx, batch); err != nil {
		return fmt.Errorf("failed to save %d items: %w", len(batch), err)
	}
	p.dirty = make(map[string]struct{})
	return nil
}

// SetTarget changes the advisory target price; nil clears it
func (p *Portfolio) SetTarget(ctx context.Context, id string, target *float64) (models.MonitoredItem, error) {
	return p.update(ctx, id, func(item *models.MonitoredItem) {
		item.TargetPrice = target
	})
}

// SetMonitoring pauses or resumes refreshes of an item
func (p *Portfolio) SetMonitoring(ctx context.Context, id string, monitoring bool) (models.MonitoredItem, error) {
	return p.update(ctx, id, func(item *models.MonitoredItem) {
		item.IsMonitoring = monitoring
	})
}

// update applies a user edit and saves it right away
func (p *Portfolio) update(ctx context.Context, id string, edit func(*models.MonitoredItem)) (models.MonitoredItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return models.MonitoredItem{}, models.ErrItemNotFound
	}

	edited := item.Clone()
	edit(edited)
	if err := p.store.Save(ctx, []models.MonitoredItem{*edited}); err != nil {
		return models.MonitoredItem{}, err
	}
	p.items[id] = edited
	return *edited.Clone(), nil
}

// Delete stops tracking an item
func (p *Portfolio) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return models.ErrItemNotFound
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}

	delete(p.items, id)
	delete(p.dirty, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	metrics.MonitoredItems.Set(float64(len(p.items)))
	return nil
}

func (p *Portfolio) snapshotLocked() []models.MonitoredItem {
	out := make([]models.MonitoredItem, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.items[id])
	}
	return out
}
