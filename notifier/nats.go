package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSNotifier publishes drop events on a NATS subject
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to url and publishes on subject
func NewNATSNotifier(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("pricewatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSNotifier(nc, subject, logger), nil
}

func newNATSNotifier(nc *nats.Conn, subject string, logger *zap.Logger) *NATSNotifier {
	return &NATSNotifier{conn: nc, subject: subject, logger: logger}
}

func (n *NATSNotifier) Notify(_ context.Context, itemName string, oldPrice, newPrice float64) error {
	data, err := json.Marshal(newEvent(itemName, oldPrice, newPrice))
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish drop for %q: %w", itemName, err)
	}
	n.logger.Debug("Published price drop", zap.String("subject", n.subject), zap.String("item", itemName))
	return nil
}

// Close drains pending messages and closes the connection
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
	}
}
