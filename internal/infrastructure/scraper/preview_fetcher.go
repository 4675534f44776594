package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"feedcache/internal/infrastructure/html"

	"github.com/PuerkitoBio/goquery"
)

const maxHTMLBytes = int64(2 * 1024 * 1024)

// PreviewFetcher finds the preview image a web page advertises.
type PreviewFetcher interface {
	FetchPreviewImage(ctx context.Context, pageURL string) (string, error)
}

type webScraper struct {
	client    *http.Client
	userAgent string
}

// NewPreviewFetcher creates a PreviewFetcher. A non-positive timeout means 15 seconds.
func NewPreviewFetcher(timeout time.Duration) PreviewFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &webScraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: "FeedCache/1.0",
	}
}

func (s *webScraper) FetchPreviewImage(ctx context.Context, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse page url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	image := extractPreviewImage(doc, base)
	if image == "" {
		return "", fmt.Errorf("no preview image found")
	}

	return image, nil
}

func extractPreviewImage(doc *goquery.Document, base *url.URL) string {
	selectors := []struct {
		selector string
		attr     string
	}{
		{`meta[property="og:image"]`, "content"},
		{`meta[property="og:image:url"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`link[rel="image_src"]`, "href"},
	}

	for _, sel := range selectors {
		value, ok := doc.Find(sel.selector).First().Attr(sel.attr)
		if !ok {
			continue
		}
		if resolved := html.ResolveURL(value, base); resolved != "" {
			return resolved
		}
	}

	for _, container := range []string{"article", "main", "body"} {
		selection := doc.Find(container)
		if selection.Length() == 0 {
			continue
		}
		fragment, err := selection.First().Html()
		if err != nil {
			continue
		}
		if image := html.ExtractImageURL(fragment, base); image != "" {
			return image
		}
	}

	return ""
}
