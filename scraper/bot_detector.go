package scraper

import (
	"regexp"
	"strings"
)

// BotDetector recognizes bot walls and captcha interstitials in rendered text
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)acesso negado`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)please verify you are human`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)muitas requisi[cç][oõ]es`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)unusual traffic`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(re|h)?captcha\b`),
			regexp.MustCompile(`(?i)turnstile`),
			regexp.MustCompile(`(?i)verify you are human`),
			regexp.MustCompile(`(?i)n[aã]o sou um rob[oô]`),
		},
	}
}

// Detect reports whether the page looks like a bot wall and why
func (bd *BotDetector) Detect(title, body string) (bool, string) {
	content := strings.ToLower(title + " " + body)

	score := 0.0
	var reasons []string
	for _, p := range bd.botPatterns {
		if p.MatchString(content) {
			score += 0.3
			reasons = append(reasons, p.String())
		}
	}
	for _, p := range bd.captchaPatterns {
		if p.MatchString(content) {
			score += 0.5
			reasons = append(reasons, "captcha: "+p.String())
		}
	}

	// walls are short pages; a long product page mentioning captcha is not one
	if len(content) < 1000 && score > 0 {
		score += 0.2
	}

	return score > 0.5, strings.Join(reasons, "; ")
}
