package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// VAPIDConfig holds the keys used to sign push requests
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

// WebPushNotifier sends a browser push to every stored subscription
type WebPushNotifier struct {
	mu     sync.RWMutex
	vapid  VAPIDConfig
	path   string
	subs   []webpush.Subscription
	client webpush.HTTPClient
	logger *zap.Logger
}

// NewWebPushNotifier loads subscriptions from path. A missing file means no
// subscribers yet.
func NewWebPushNotifier(vapid VAPIDConfig, path string, logger *zap.Logger) (*WebPushNotifier, error) {
	n := &WebPushNotifier{vapid: vapid, path: path, client: http.DefaultClient, logger: logger}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return n, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	if err := json.Unmarshal(data, &n.subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return n, nil
}

// Subscribe stores a new subscription, replacing one with the same endpoint
func (n *WebPushNotifier) Subscribe(sub webpush.Subscription) error {
	if sub.Endpoint == "" {
		return errors.New("subscription endpoint is required")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.subs {
		if n.subs[i].Endpoint == sub.Endpoint {
			n.subs[i] = sub
			return n.persistLocked()
		}
	}
	n.subs = append(n.subs, sub)
	return n.persistLocked()
}

// Subscriptions returns how many subscribers are stored
func (n *WebPushNotifier) Subscriptions() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *WebPushNotifier) Notify(ctx context.Context, itemName string, oldPrice, newPrice float64) error {
	payload, err := json.Marshal(map[string]any{
		"title": "Price drop",
		"body":  fmt.Sprintf("%s: %.2f → %.2f", itemName, oldPrice, newPrice),
		"event": newEvent(itemName, oldPrice, newPrice),
	})
	if err != nil {
		return err
	}

	n.mu.RLock()
	subs := append([]webpush.Subscription(nil), n.subs...)
	n.mu.RUnlock()

	var errs []error
	var gone []string
	for i := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &subs[i], &webpush.Options{
			HTTPClient:      n.client,
			Subscriber:      n.vapid.Subscriber,
			VAPIDPublicKey:  n.vapid.PublicKey,
			VAPIDPrivateKey: n.vapid.PrivateKey,
			TTL:             60 * 60,
			Urgency:         webpush.UrgencyHigh,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			gone = append(gone, subs[i].Endpoint)
		case resp.StatusCode >= 400:
			errs = append(errs, fmt.Errorf("push endpoint returned %d", resp.StatusCode))
		}
	}

	if len(gone) > 0 {
		n.prune(gone)
	}
	return errors.Join(errs...)
}

// prune drops subscriptions the push service reported as expired
func (n *WebPushNotifier) prune(endpoints []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	drop := make(map[string]struct{}, len(endpoints))
	for _, e := range endpoints {
		drop[e] = struct{}{}
	}
	kept := n.subs[:0]
	for _, s := range n.subs {
		if _, ok := drop[s.Endpoint]; !ok {
			kept = append(kept, s)
		}
	}
	n.subs = kept
	n.logger.Info("Removed expired push subscriptions", zap.Int("count", len(endpoints)))
	if err := n.persistLocked(); err != nil {
		n.logger.Warn("Failed to persist subscriptions", zap.Error(err))
	}
}

func (n *WebPushNotifier) persistLocked() error {
	if n.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(n.subs, "", "  ")
	if err != nil {
		return err
	}
	tmp := n.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, n.path)
}
