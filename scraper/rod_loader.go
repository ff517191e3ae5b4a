package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pricewatch/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// LoaderConfig configures the headless browser
type LoaderConfig struct {
	Bin               string
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	// ReadTimeout bounds reading the DOM after navigation, even when the
	// caller's context is already done
	ReadTimeout time.Duration
}

// LoadResult is a rendered page ready for extraction
type LoadResult struct {
	Doc      Document
	Status   int
	TimedOut bool
}

const systemChromium = "/usr/bin/chromium-browser"

// hides the most common automation fingerprints
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['pt-BR', 'pt', 'en-US'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = { runtime: {} };
`

// RodLoader renders pages in headless Chromium. The browser process is
// shared, but every Load runs in its own incognito context.
type RodLoader struct {
	cfg      LoaderConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	logger   *zap.Logger
}

// NewRodLoader launches the browser
func NewRodLoader(cfg LoaderConfig, logger *zap.Logger) (*RodLoader, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 20 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	switch {
	case cfg.Bin != "":
		l = l.Bin(cfg.Bin)
	default:
		if _, err := os.Stat(systemChromium); err == nil {
			l = l.Bin(systemChromium)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Info("Browser launched", zap.String("control_url", controlURL))
	return &RodLoader{cfg: cfg, launcher: l, browser: browser, logger: logger}, nil
}

// Close shuts the browser down
func (rl *RodLoader) Close() error {
	err := rl.browser.Close()
	rl.launcher.Kill()
	return err
}

// session is the exclusive, single-use render scope of one fetch
type session struct {
	browser *rod.Browser
	page    *rod.Page
}

func (rl *RodLoader) acquire() (*session, error) {
	incognito, err := rl.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to open incognito context: %w", err)
	}
	s := &session{browser: incognito}

	s.page, err = incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if rl.cfg.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rl.cfg.UserAgent}); err != nil {
			s.release()
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if _, err := s.page.EvalOnNewDocument(stealthScript); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to install page script: %w", err)
	}
	return s, nil
}

func (s *session) release() {
	if s.page != nil {
		_ = s.page.Close()
	}
	_ = s.browser.Close()
}

// Load navigates to url and returns the rendered DOM. A navigation timeout
// is not an error: the DOM at hand is still returned.
func (rl *RodLoader) Load(ctx context.Context, url string) (*LoadResult, error) {
	sess, err := rl.acquire()
	if err != nil {
		return nil, models.NewFetchError(models.KindNoData, url, err)
	}
	defer sess.release()

	navCtx, cancel := context.WithTimeout(ctx, rl.cfg.NavigationTimeout)
	defer cancel()
	page := sess.page.Context(navCtx)

	statusCh := make(chan int, 1)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		select {
		case statusCh <- e.Response.Status:
		default:
		}
		return true
	})
	go wait()

	result := &LoadResult{}
	if err := page.Navigate(url); err != nil {
		if !isDeadline(err) {
			return nil, models.NewFetchError(models.KindNoData, url, err)
		}
		result.TimedOut = true
	}
	if !result.TimedOut {
		if err := page.WaitLoad(); err != nil {
			result.TimedOut = isDeadline(err)
			if !result.TimedOut {
				rl.logger.Warn("Wait for load failed, continuing", zap.String("url", url), zap.Error(err))
			}
		}
	}

	select {
	case result.Status = <-statusCh:
	default:
	}
	if result.Status >= 400 {
		return nil, models.NewFetchError(models.KindNoData, url, fmt.Errorf("status %d", result.Status))
	}

	if !result.TimedOut {
		rl.settle(ctx)
	}

	html, err := sess.page.Timeout(rl.cfg.ReadTimeout).HTML()
	if err != nil {
		return nil, models.NewFetchError(models.KindParsing, url, err)
	}
	result.Doc, err = NewDocument(html)
	if err != nil {
		return nil, models.NewFetchError(models.KindParsing, url, err)
	}
	return result, nil
}

// settle gives client-side rendering time to populate the page. Being
// cancelled only shortens the wait.
func (rl *RodLoader) settle(ctx context.Context) {
	if rl.cfg.SettleDelay == 0 {
		return
	}
	t := time.NewTimer(rl.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
