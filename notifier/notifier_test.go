package notifier

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, string, float64, float64) error {
	r.calls++
	return r.err
}

func TestMultiNotifiesEveryone(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	m := Multi{failing, ok, NewLogNotifier(zap.NewNop())}

	err := m.Notify(context.Background(), "Kettle", 100, 80)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if failing.calls != 1 || ok.calls != 1 {
		t.Errorf("expected one call each, got %d and %d", failing.calls, ok.calls)
	}
}

func TestNATSConnectFailure(t *testing.T) {
	if _, err := NewNATSNotifier("nats://127.0.0.1:1", "drops", zap.NewNop()); err == nil {
		t.Fatal("expected connection error")
	}
}

func testSubscription(t *testing.T, endpoint string) webpush.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func TestWebPushPrunesExpiredSubscriptions(t *testing.T) {
	var hits atomic.Int32
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer live.Close()
	expired := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer expired.Close()

	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("failed to generate VAPID keys: %v", err)
	}

	path := filepath.Join(t.TempDir(), "subs.json")
	n, err := NewWebPushNotifier(VAPIDConfig{PublicKey: pub, PrivateKey: priv, Subscriber: "ops@example.com"}, path, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.Subscribe(testSubscription(t, live.URL)); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := n.Subscribe(testSubscription(t, expired.URL)); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := n.Notify(context.Background(), "Kettle", 100, 80); err != nil {
		t.Fatalf("unexpected notify error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 push requests, got %d", hits.Load())
	}
	if n.Subscriptions() != 1 {
		t.Errorf("expected expired subscription to be pruned, have %d", n.Subscriptions())
	}

	reloaded, err := NewWebPushNotifier(VAPIDConfig{}, path, zap.NewNop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Subscriptions() != 1 {
		t.Errorf("expected 1 persisted subscription, got %d", reloaded.Subscriptions())
	}
}

func TestSubscribeRequiresEndpoint(t *testing.T) {
	n, _ := NewWebPushNotifier(VAPIDConfig{}, "", zap.NewNop())
	if err := n.Subscribe(webpush.Subscription{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
