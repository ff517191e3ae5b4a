package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pricewatch/models"
	"pricewatch/repository"

	"go.uber.org/zap"
)

func newTestPortfolio(t *testing.T) (*Portfolio, *repository.BoltStore) {
	t.Helper()
	store, err := repository.NewBoltStore(filepath.Join(t.TempDir(), "portfolio.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewPortfolio(store, zap.NewNop()), store
}

func record(price float64) models.ExtractedRecord {
	return models.ExtractedRecord{Name: "Headphone", Price: price, Currency: "BRL", PriceFound: true}
}

func TestTrackRejectsDuplicates(t *testing.T) {
	p, _ := newTestPortfolio(t)
	ctx := context.Background()

	if _, err := p.Track(ctx, "https://shop.com/headphone", record(100), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := p.Track(ctx, " HTTPS://SHOP.COM/headphone\t", record(100), nil)
	if !errors.Is(err, models.ErrDuplicateProduct) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if got := len(p.Snapshot()); got != 1 {
		t.Errorf("expected 1 item, got %d", got)
	}
}

func TestTrackRequiresPrice(t *testing.T) {
	p, _ := newTestPortfolio(t)
	_, err := p.Track(context.Background(), "https://shop.com/x", models.ExtractedRecord{Name: "X"}, nil)
	if !errors.Is(err, models.ErrParsing) {
		t.Fatalf("expected parsing error, got %v", err)
	}
}

func TestApplyAndFlush(t *testing.T) {
	p, store := newTestPortfolio(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return clock })

	item, err := p.Track(ctx, "https://shop.com/a", record(100), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = clock.Add(time.Hour)
	res, name, err := p.Apply(item.ID, 80, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Dropped || res.OldPrice != 100 || name != "Headphone" {
		t.Errorf("expected drop from 100, got %+v (%s)", res, name)
	}

	// nothing is persisted until Flush
	stored, _ := store.FetchMonitored(ctx)
	if stored[0].CurrentPrice != 100 {
		t.Errorf("expected store to still hold 100, got %v", stored[0].CurrentPrice)
	}

	if err := p.Flush(ctx); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	stored, _ = store.FetchMonitored(ctx)
	if stored[0].CurrentPrice != 80 || len(stored[0].PriceHistory) != 2 {
		t.Errorf("expected flushed drop, got %+v", stored[0])
	}
	if !stored[0].LastCheckedAt.Equal(clock) {
		t.Errorf("expected last checked %v, got %v", clock, stored[0].LastCheckedAt)
	}
}

func TestApplyUnknownItem(t *testing.T) {
	p, _ := newTestPortfolio(t)
	if _, _, err := p.Apply("missing", 10, ""); !errors.Is(err, models.ErrItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplySkipsPausedItem(t *testing.T) {
	p, store := newTestPortfolio(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return clock })

	item, err := p.Track(ctx, "https://shop.com/headphone", record(100), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.SetMonitoring(ctx, item.ID, false); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}

	clock = clock.Add(time.Hour)
	res, _, err := p.Apply(item.ID, 80, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || res.Dropped {
		t.Errorf("paused item must be reported unchanged, got %+v", res)
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	got, _ := p.Get(item.ID)
	if got.CurrentPrice != 100 || len(got.PriceHistory) != 1 || !got.LastCheckedAt.Equal(item.LastCheckedAt) {
		t.Errorf("paused item was modified: %+v", got)
	}
	stored, err := store.FetchMonitored(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(stored) != 1 || stored[0].CurrentPrice != 100 {
		t.Errorf("paused item changed in store: %+v", stored)
	}
}

func TestUserEditsPersist(t *testing.T) {
	p, store := newTestPortfolio(t)
	ctx := context.Background()

	item, _ := p.Track(ctx, "https://shop.com/a", record(100), nil)
	target := 90.0
	if _, err := p.SetTarget(ctx, item.ID, &target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.SetMonitoring(ctx, item.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := NewPortfolio(store, zap.NewNop())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	got, err := reloaded.Get(item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TargetPrice == nil || *got.TargetPrice != 90 || got.IsMonitoring {
		t.Errorf("expected target 90 and paused, got %+v", got)
	}
}

func TestDeleteRemovesItem(t *testing.T) {
	p, _ := newTestPortfolio(t)
	ctx := context.Background()

	item, _ := p.Track(ctx, "https://shop.com/a", record(100), nil)
	if err := p.Delete(ctx, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Get(item.ID); !errors.Is(err, models.ErrItemNotFound) {
		t.Errorf("expected item to be gone, got %v", err)
	}
	if _, err := p.Track(ctx, "https://shop.com/a", record(100), nil); err != nil {
		t.Errorf("expected URL to be trackable again, got %v", err)
	}
}

func TestConcurrentAppliesSerialize(t *testing.T) {
	p, _ := newTestPortfolio(t)
	ctx := context.Background()
	item, _ := p.Track(ctx, "https://shop.com/a", record(1000), nil)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(price float64) {
			defer wg.Done()
			p.Apply(item.ID, price, "")
		}(float64(i))
	}
	wg.Wait()

	got, _ := p.Get(item.ID)
	if len(got.PriceHistory) != 51 {
		t.Fatalf("expected 51 points, got %d", len(got.PriceHistory))
	}
	if got.CurrentPrice != got.PriceHistory[len(got.PriceHistory)-1].Price {
		t.Errorf("current price %v does not match last point", got.CurrentPrice)
	}
	for i := 1; i < len(got.PriceHistory); i++ {
		if got.PriceHistory[i].ObservedAt.Before(got.PriceHistory[i-1].ObservedAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}
