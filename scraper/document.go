package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Image is a content image found on a page
type Image struct {
	Src   string
	Alt   string
	Class string
	ID    string
}

// Document is the query surface the extraction strategies run against
type Document interface {
	// StructuredData returns the raw contents of every embedded JSON-LD block
	StructuredData() []string
	// FirstText returns the trimmed text of the first element matching
	// selector that has any text
	FirstText(selector string) string
	// MetaContent returns the content of the first meta tag whose property,
	// name or itemprop equals one of keys
	MetaContent(keys ...string) string
	// Heading returns the text of the first h1
	Heading() string
	Title() string
	Images() []Image
	// TextFragments returns the own text of up to limit text-bearing elements
	TextFragments(limit int) []string
	BodyText() string
}

// textTags are the elements scanned for free-text prices
const textTags = "span, p, div, strong, b, em, li, td, dd, small, h2, h3, h4, a, label"

type htmlDocument struct {
	doc *goquery.Document
}

// NewDocument parses rendered HTML into a Document
func NewDocument(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &htmlDocument{doc: doc}, nil
}

func (d *htmlDocument) StructuredData() []string {
	var blocks []string
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

func (d *htmlDocument) FirstText(selector string) string {
	var found string
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = collapseSpace(s.Text())
		return found == ""
	})
	return found
}

func (d *htmlDocument) MetaContent(keys ...string) string {
	for _, key := range keys {
		for _, attr := range []string{"property", "name", "itemprop"} {
			sel := fmt.Sprintf(`meta[%s=%q]`, attr, key)
			if content, ok := d.doc.Find(sel).First().Attr("content"); ok {
				if content = strings.TrimSpace(content); content != "" {
					return content
				}
			}
		}
	}
	return ""
}

func (d *htmlDocument) Heading() string {
	return d.FirstText("h1")
}

func (d *htmlDocument) Title() string {
	return collapseSpace(d.doc.Find("title").First().Text())
}

func (d *htmlDocument) Images() []Image {
	var images []Image
	d.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Attr("data-src")
		}
		if src == "" {
			return
		}
		alt, _ := s.Attr("alt")
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		images = append(images, Image{Src: src, Alt: alt, Class: class, ID: id})
	})
	return images
}

func (d *htmlDocument) TextFragments(limit int) []string {
	var fragments []string
	count := 0
	d.doc.Find("body").Find(textTags).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if count >= limit {
			return false
		}
		count++
		if text := ownText(s); text != "" {
			fragments = append(fragments, text)
		}
		return true
	})
	return fragments
}

func (d *htmlDocument) BodyText() string {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return collapseSpace(body.Text())
}

// ownText returns the text of the element's direct text nodes
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
			b.WriteByte(' ')
		}
	})
	text := collapseSpace(b.String())
	if text == "" {
		// prices are often split into child spans ("R$" + "1.299,90")
		text = collapseSpace(s.Text())
	}
	return text
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
