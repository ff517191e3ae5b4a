package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// PricePoint is a single observation in an item's price history
type PricePoint struct {
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// MonitoredItem represents a product page being tracked for price changes
type MonitoredItem struct {
	ID            string       `json:"id"`
	SourceURL     string       `json:"source_url"`
	Name          string       `json:"name"`
	ImageURL      string       `json:"image_url,omitempty"`
	Currency      string       `json:"currency"`
	InitialPrice  float64      `json:"initial_price"`
	CurrentPrice  float64      `json:"current_price"`
	TargetPrice   *float64     `json:"target_price,omitempty"`
	IsMonitoring  bool         `json:"is_monitoring"`
	LastCheckedAt time.Time    `json:"last_checked_at"`
	CreatedAt     time.Time    `json:"created_at"`
	PriceHistory  []PricePoint `json:"price_history"`
}

// AppendResult describes what an Append did to an item
type AppendResult struct {
	Changed  bool
	Dropped  bool
	OldPrice float64
	NewPrice float64
}

// NewMonitoredItem creates an item from a freshly extracted record. The
// history is seeded with one point equal to the baseline price.
func NewMonitoredItem(sourceURL string, rec ExtractedRecord, now time.Time) *MonitoredItem {
	return &MonitoredItem{
		ID:            uuid.New().String(),
		SourceURL:     strings.TrimSpace(sourceURL),
		Name:          rec.Name,
		ImageURL:      rec.ImageURL,
		Currency:      rec.Currency,
		InitialPrice:  rec.Price,
		CurrentPrice:  rec.Price,
		IsMonitoring:  true,
		LastCheckedAt: now,
		CreatedAt:     now,
		PriceHistory:  []PricePoint{{Price: rec.Price, ObservedAt: now}},
	}
}

// Append records an observed price. An unchanged price only advances
// LastCheckedAt; a changed price appends a point and becomes CurrentPrice.
func (m *MonitoredItem) Append(price float64, imageURL string, now time.Time) AppendResult {
	res := AppendResult{OldPrice: m.CurrentPrice, NewPrice: price}

	// observedAt must never go backwards
	if last, ok := m.lastPoint(); ok && now.Before(last.ObservedAt) {
		now = last.ObservedAt
	}
	m.LastCheckedAt = now

	if price == m.CurrentPrice && len(m.PriceHistory) > 0 {
		return res
	}

	m.PriceHistory = append(m.PriceHistory, PricePoint{Price: price, ObservedAt: now})
	m.CurrentPrice = price
	if imageURL != "" {
		m.ImageURL = imageURL
	}

	res.Changed = true
	res.Dropped = price < res.OldPrice
	return res
}

func (m *MonitoredItem) lastPoint() (PricePoint, bool) {
	if len(m.PriceHistory) == 0 {
		return PricePoint{}, false
	}
	return m.PriceHistory[len(m.PriceHistory)-1], true
}

// PercentChange returns the change since tracking began, in percent
func (m *MonitoredItem) PercentChange() float64 {
	if m.InitialPrice == 0 {
		return 0
	}
	return (m.CurrentPrice - m.InitialPrice) / m.InitialPrice * 100
}

// AbsoluteChange returns the change since tracking began
func (m *MonitoredItem) AbsoluteChange() float64 {
	return m.CurrentPrice - m.InitialPrice
}

// IsBelowTarget reports whether the current price reached the user's target
func (m *MonitoredItem) IsBelowTarget() bool {
	return m.TargetPrice != nil && m.CurrentPrice <= *m.TargetPrice
}

// NormalizedURL returns the uniqueness key of the item
func (m *MonitoredItem) NormalizedURL() string {
	return NormalizeURL(m.SourceURL)
}

// Clone returns a deep copy of the item
func (m *MonitoredItem) Clone() *MonitoredItem {
	c := *m
	c.PriceHistory = append([]PricePoint(nil), m.PriceHistory...)
	if m.TargetPrice != nil {
		target := *m.TargetPrice
		c.TargetPrice = &target
	}
	return &c
}

// MarshalJSON adds the derived metrics to the wire form
func (m *MonitoredItem) MarshalJSON() ([]byte, error) {
	type Alias MonitoredItem
	return json.Marshal(&struct {
		*Alias
		PercentChange  float64 `json:"percent_change"`
		AbsoluteChange float64 `json:"absolute_change"`
		BelowTarget    bool    `json:"below_target"`
	}{
		Alias:          (*Alias)(m),
		PercentChange:  m.PercentChange(),
		AbsoluteChange: m.AbsoluteChange(),
		BelowTarget:    m.IsBelowTarget(),
	})
}

// NormalizeURL trims whitespace and case-folds a source URL
func NormalizeURL(raw string) string {
	// a Caser keeps state, so one per call
	return cases.Fold().String(strings.TrimSpace(raw))
}

// Register checks that newURL is not already tracked by any of existing
func Register(newURL string, existing []MonitoredItem) error {
	candidate := NormalizeURL(newURL)
	for i := range existing {
		if existing[i].NormalizedURL() == candidate {
			return ErrDuplicateProduct
		}
	}
	return nil
}
