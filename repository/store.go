package repository

import (
	"context"

	"pricewatch/models"
)

// Store persists monitored items. Save is atomic: either every item in the
// call is written or none is.
type Store interface {
	FetchMonitored(ctx context.Context) ([]models.MonitoredItem, error)
	Save(ctx context.Context, items []models.MonitoredItem) error
	Insert(ctx context.Context, item models.MonitoredItem) error
	Delete(ctx context.Context, id string) error
	Close() error
}
