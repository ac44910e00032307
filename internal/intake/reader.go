package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MaxTextLength caps the text handed to the intake assistant.
const MaxTextLength = 12000

// ErrNotURL is returned when the message is not a single http(s) URL.
var ErrNotURL = errors.New("not an http(s) url")

var whitespace = regexp.MustCompile(`\s+`)

// Reader fetches onboarding pages (shared forms, docs) and returns their
// readable text.
type Reader struct {
	client *http.Client
}

// NewReader creates a Reader. A nil client uses a 15s timeout client.
func NewReader(client *http.Client) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Reader{client: client}
}

// IsURL reports whether msg is a single http(s) URL and nothing else.
func IsURL(msg string) bool {
	msg = strings.TrimSpace(msg)
	if strings.ContainsAny(msg, " \t\n") {
		return false
	}
	u, err := url.Parse(msg)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Read fetches rawURL and returns its cleaned text.
func (r *Reader) Read(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !IsURL(rawURL) {
		return "", fmt.Errorf("%w: %q", ErrNotURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	return ExtractText(resp.Body)
}

// ExtractText strips scripts, styling and page chrome from an HTML document
// and returns the remaining text with whitespace collapsed.
func ExtractText(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Remove noise to save LLM tokens
	doc.Find("script, style, noscript, nav, header, footer, iframe, svg, ads, .ads, #ads").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	// Form labels and inputs carry most of an onboarding form's answers.
	doc.Find("input[value], textarea").Each(func(_ int, s *goquery.Selection) {
		if s.Is("input[type=hidden]") {
			s.Remove()
			return
		}
		val, _ := s.Attr("value")
		if s.Is("textarea") {
			val = s.Text()
		}
		if val = strings.TrimSpace(val); val != "" {
			s.ReplaceWithHtml("<span> " + escape(val) + " </span>")
		}
	})
	parts = append(parts, doc.Find("body").Text())

	text := strings.TrimSpace(whitespace.ReplaceAllString(strings.Join(parts, " "), " "))
	if text == "" {
		return "", errors.New("page has no readable text")
	}
	if len(text) > MaxTextLength {
		text = truncate(text, MaxTextLength)
	}
	return text, nil
}

func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
