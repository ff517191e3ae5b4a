package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"pricewatch/models"
)

// UnknownProductName is used when no strategy yields a name
const UnknownProductName = "Unknown product"

// DefaultPriceSelectors are tried in order when structured data has no price
var DefaultPriceSelectors = []string{
	"[data-testid='price-value']",
	".andes-money-amount--cents-superscript .andes-money-amount__fraction",
	".price-tag-fraction",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	".product-price",
	".sales-price",
	".price__current",
	".current-price",
	".price",
}

// ExtractorConfig holds the site-specific knobs of the pipeline
type ExtractorConfig struct {
	HomeCurrency       string
	CurrencySymbols    []string
	PriceSelectors     []string
	AssetDomainPattern string
	ScanLimit          int
	MaxPlausiblePrice  float64
}

// DefaultExtractorConfig returns the configuration for the home market
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		HomeCurrency:       "BRL",
		CurrencySymbols:    []string{"R$"},
		PriceSelectors:     DefaultPriceSelectors,
		AssetDomainPattern: `(?i)^https?://[^/]*(images?|img|static|media|cdn|mlstatic|media-amazon)[^/]*/`,
		ScanLimit:          500,
		MaxPlausiblePrice:  50000,
	}
}

// Extractor turns a rendered Document into an ExtractedRecord using an
// ordered chain of strategies per field. It holds no per-call state.
type Extractor struct {
	cfg        ExtractorConfig
	assetRe    *regexp.Regexp
	pricetagRe *regexp.Regexp
}

// NewExtractor compiles the patterns of cfg
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	def := DefaultExtractorConfig()
	if cfg.HomeCurrency == "" {
		cfg.HomeCurrency = def.HomeCurrency
	}
	if len(cfg.CurrencySymbols) == 0 {
		cfg.CurrencySymbols = def.CurrencySymbols
	}
	if len(cfg.PriceSelectors) == 0 {
		cfg.PriceSelectors = def.PriceSelectors
	}
	if cfg.AssetDomainPattern == "" {
		cfg.AssetDomainPattern = def.AssetDomainPattern
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	if cfg.MaxPlausiblePrice <= 0 {
		cfg.MaxPlausiblePrice = def.MaxPlausiblePrice
	}

	assetRe, err := regexp.Compile(cfg.AssetDomainPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset domain pattern: %w", err)
	}

	symbols := make([]string, len(cfg.CurrencySymbols))
	for i, s := range cfg.CurrencySymbols {
		symbols[i] = regexp.QuoteMeta(s)
	}
	pricetagRe := regexp.MustCompile(`(?:` + strings.Join(symbols, "|") + `)\s*(\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:,\d{1,2})?)`)

	return &Extractor{cfg: cfg, assetRe: assetRe, pricetagRe: pricetagRe}, nil
}

// Extract never fails: every missing field resolves to a fallback default
func (e *Extractor) Extract(doc Document) models.ExtractedRecord {
	rec := models.ExtractedRecord{
		Currency:    e.cfg.HomeCurrency,
		PriceSource: models.SourceNone,
	}
	sd := structuredProduct(doc)

	rec.Name = firstNonEmpty(
		func() string { return sd.name },
		doc.Heading,
		func() string { return doc.MetaContent("og:title", "twitter:title") },
		func() string { return stripTitleSuffix(doc.Title()) },
	)
	if rec.Name == "" {
		rec.Name = UnknownProductName
	}

	switch {
	case sd.price > 0:
		rec.Price, rec.PriceSource = sd.price, models.SourceStructuredData
		if sd.currency != "" {
			rec.Currency = sd.currency
		}
	default:
		if p := e.selectorPrice(doc); p > 0 {
			rec.Price, rec.PriceSource = p, models.SourceSelector
		} else if p := metaPrice(doc); p > 0 {
			rec.Price, rec.PriceSource = p, models.SourceMeta
		} else if p := e.scanPrice(doc); p > 0 {
			rec.Price, rec.PriceSource = p, models.SourceTextScan
		}
	}
	rec.PriceFound = rec.Price > 0

	if rec.Currency == e.cfg.HomeCurrency {
		if c := doc.MetaContent("product:price:currency", "og:price:currency", "priceCurrency"); c != "" {
			rec.Currency = strings.ToUpper(c)
		}
	}

	rec.ImageURL = firstNonEmpty(
		func() string { return sd.image },
		func() string { return doc.MetaContent("og:image", "og:image:secure_url", "twitter:image") },
		func() string { return e.assetImage(doc) },
	)

	return rec
}

func firstNonEmpty(sources ...func() string) string {
	for _, src := range sources {
		if v := strings.TrimSpace(src()); v != "" {
			return v
		}
	}
	return ""
}

// selectorPrice tries each known price display in order
func (e *Extractor) selectorPrice(doc Document) float64 {
	for _, sel := range e.cfg.PriceSelectors {
		if p := ParsePrice(doc.FirstText(sel)); p > 0 {
			return p
		}
	}
	return 0
}

// metaPrice reads the page-level price tag, already machine formatted
func metaPrice(doc Document) float64 {
	return parseMachineNumber(doc.MetaContent("product:price:amount", "og:price:amount", "price"))
}

// maxFragmentLen bounds the text fragments considered by the regex scan
const maxFragmentLen = 40

// scanPrice looks for a currency-prefixed amount in short text fragments
func (e *Extractor) scanPrice(doc Document) float64 {
	for _, text := range doc.TextFragments(e.cfg.ScanLimit) {
		if len(text) > maxFragmentLen {
			continue
		}
		m := e.pricetagRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if p := ParsePrice(m[1]); p > 0 && p < e.cfg.MaxPlausiblePrice {
			return p
		}
	}
	return 0
}

// assetImage picks the first content image hosted on the site's asset
// domain that is not a logo or icon
func (e *Extractor) assetImage(doc Document) string {
	for _, img := range doc.Images() {
		if !e.assetRe.MatchString(img.Src) {
			continue
		}
		flags := strings.ToLower(img.Src + " " + img.Alt + " " + img.Class + " " + img.ID)
		if strings.Contains(flags, "logo") || strings.Contains(flags, "icon") {
			continue
		}
		return img.Src
	}
	return ""
}

var titleSeparators = []string{" | ", " - ", " – ", " — "}

// stripTitleSuffix drops a trailing " | Site Name" style suffix
func stripTitleSuffix(title string) string {
	cut := -1
	for _, sep := range titleSeparators {
		if i := strings.LastIndex(title, sep); i > cut {
			cut = i
		}
	}
	if cut > 0 {
		return strings.TrimSpace(title[:cut])
	}
	return title
}

// productData is what the structured-data strategy found
type productData struct {
	name     string
	image    string
	price    float64
	currency string
}

// structuredProduct scans all JSON-LD blocks for Product nodes
func structuredProduct(doc Document) productData {
	var pd productData
	for _, block := range doc.StructuredData() {
		var raw any
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			continue
		}
		for _, node := range productNodes(raw) {
			if pd.name == "" {
				pd.name = asString(node["name"])
			}
			if pd.image == "" {
				pd.image = imageValue(node["image"])
			}
			if pd.price == 0 {
				pd.price, pd.currency = offerPrice(node["offers"])
			}
		}
	}
	return pd
}

// productNodes flattens top-level arrays and @graph containers
func productNodes(raw any) []map[string]any {
	var nodes []map[string]any
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			nodes = append(nodes, productNodes(item)...)
		}
	case map[string]any:
		if isType(v["@type"], "Product") {
			nodes = append(nodes, v)
		}
		if graph, ok := v["@graph"]; ok {
			nodes = append(nodes, productNodes(graph)...)
		}
	}
	return nodes
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if isType(item, want) {
				return true
			}
		}
	}
	return false
}

func imageValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return imageValue(t[0])
		}
	case map[string]any:
		return asString(t["url"])
	}
	return ""
}

// offerPrice returns the first strictly positive offer price and its currency
func offerPrice(v any) (float64, string) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p, c := offerPrice(item); p > 0 {
				return p, c
			}
		}
	case map[string]any:
		currency := strings.ToUpper(asString(t["priceCurrency"]))
		for _, key := range []string{"lowPrice", "price"} {
			if p := numberValue(t[key]); p > 0 {
				return p, currency
			}
		}
		// AggregateOffer may nest its offers
		if nested, ok := t["offers"]; ok {
			return offerPrice(nested)
		}
	}
	return 0, ""
}

func numberValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return roundPrice(t)
	case string:
		if p := parseMachineNumber(t); p > 0 {
			return p
		}
		return ParsePrice(t)
	}
	return 0
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
