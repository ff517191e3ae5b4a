package notifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers a price drop to the user. Delivery is fire-and-forget
// from the caller's point of view; errors are only reported for logging.
type Notifier interface {
	Notify(ctx context.Context, itemName string, oldPrice, newPrice float64) error
}

// PriceDropEvent is the payload published for a drop
type PriceDropEvent struct {
	ItemName   string    `json:"item_name"`
	OldPrice   float64   `json:"old_price"`
	NewPrice   float64   `json:"new_price"`
	DetectedAt time.Time `json:"detected_at"`
	Source     string    `json:"source"`
}

func newEvent(itemName string, oldPrice, newPrice float64) PriceDropEvent {
	return PriceDropEvent{
		ItemName:   itemName,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		DetectedAt: time.Now().UTC(),
		Source:     "pricewatch",
	}
}

// LogNotifier writes drops to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, itemName string, oldPrice, newPrice float64) error {
	n.logger.Info("Price dropped",
		zap.String("item", itemName),
		zap.Float64("old_price", oldPrice),
		zap.Float64("new_price", newPrice))
	return nil
}

// Multi fans a drop out to every notifier, collecting their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, itemName string, oldPrice, newPrice float64) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, itemName, oldPrice, newPrice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
