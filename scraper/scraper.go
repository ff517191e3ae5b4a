package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pricewatch/metrics"
	"pricewatch/models"

	"go.uber.org/zap"
)

// PageLoader renders a URL into a queryable document
type PageLoader interface {
	Load(ctx context.Context, url string) (*LoadResult, error)
}

// Scraper fetches a product page and extracts a normalized record. It keeps
// no state between calls.
type Scraper struct {
	loader    PageLoader
	extractor *Extractor
	bots      *BotDetector
	logger    *zap.Logger
}

// NewScraper creates a scraper over the given loader
func NewScraper(loader PageLoader, extractor *Extractor, logger *zap.Logger) *Scraper {
	return &Scraper{
		loader:    loader,
		extractor: extractor,
		bots:      NewBotDetector(),
		logger:    logger,
	}
}

// FetchOne loads rawURL and extracts its product data
func (s *Scraper) FetchOne(ctx context.Context, rawURL string) (models.ExtractedRecord, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return models.ExtractedRecord{}, err
	}

	start := time.Now()
	res, err := s.loader.Load(ctx, target)
	if err != nil {
		metrics.FetchDuration.WithLabelValues(string(models.KindOf(err))).Observe(time.Since(start).Seconds())
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			err = models.NewFetchError(models.KindNoData, target, err)
		}
		return models.ExtractedRecord{}, err
	}

	log := s.logger.With(zap.String("url", target))
	if res.TimedOut {
		log.Warn("Navigation timed out, extracting from partial render",
			zap.String("kind", string(models.KindTimeout)))
	}
	if isBot, reason := s.bots.Detect(res.Doc.Title(), res.Doc.BodyText()); isBot {
		metrics.BotWallsDetected.Inc()
		log.Warn("Page looks like a bot wall", zap.String("reason", reason))
	}

	rec := s.extractor.Extract(res.Doc)
	metrics.PriceSource.WithLabelValues(rec.PriceSource).Inc()
	metrics.FetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	log.Info("Extracted product",
		zap.String("name", rec.Name),
		zap.Float64("price", rec.Price),
		zap.String("currency", rec.Currency),
		zap.String("source", rec.PriceSource),
		zap.Bool("timed_out", res.TimedOut))
	return rec, nil
}

// ValidateURL returns the trimmed URL if it is an absolute http(s) URL
func ValidateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", models.NewFetchError(models.KindInvalidURL, trimmed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", models.NewFetchError(models.KindInvalidURL, trimmed, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return "", models.NewFetchError(models.KindInvalidURL, trimmed, errors.New("missing host"))
	}
	return trimmed, nil
}
