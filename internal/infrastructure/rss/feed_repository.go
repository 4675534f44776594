package rss

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"
	"feedcache/internal/infrastructure/html"
	"feedcache/internal/infrastructure/scraper"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

type feedRepository struct {
	parser   *gofeed.Parser
	previews scraper.PreviewFetcher
}

// NewFeedRepository returns a repository that turns feed items into feed
// images. previews may be nil, in which case item pages are never fetched.
func NewFeedRepository(previews scraper.PreviewFetcher) repository.FeedRepository {
	return &feedRepository{
		parser:   gofeed.NewParser(),
		previews: previews,
	}
}

func (r *feedRepository) Fetch(ctx context.Context, feedURL string) ([]entity.FeedImage, error) {
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}

	images := make([]entity.FeedImage, 0, len(feed.Items))

	for _, item := range feed.Items {
		imageURL := r.imageURL(ctx, item)
		if imageURL == nil {
			continue
		}

		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			guid = imageURL.String()
		}

		images = append(images, entity.NewFeedImage(
			uuid.NewSHA1(uuid.NameSpaceURL, []byte(guid)),
			optional(html.PlainText(item.Description)),
			optional(location(item)),
			imageURL,
		))
	}

	return images, nil
}

func (r *feedRepository) imageURL(ctx context.Context, item *gofeed.Item) *url.URL {
	link, _ := url.Parse(item.Link)

	candidate := ""
	if item.Image != nil {
		candidate = html.ResolveURL(item.Image.URL, link)
	}
	if candidate == "" {
		for _, enclosure := range item.Enclosures {
			if strings.HasPrefix(enclosure.Type, "image/") {
				if candidate = html.ResolveURL(enclosure.URL, link); candidate != "" {
					break
				}
			}
		}
	}
	if candidate == "" {
		candidate = html.ExtractImageURL(item.Content, link)
	}
	if candidate == "" {
		candidate = html.ExtractImageURL(item.Description, link)
	}
	if candidate == "" && r.previews != nil && item.Link != "" {
		preview, err := r.previews.FetchPreviewImage(ctx, item.Link)
		if err != nil {
			log.Printf("No preview image [%s]: %v", item.Link, err)
		} else {
			candidate = preview
		}
	}
	if candidate == "" {
		return nil
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil
	}
	return u
}

// location reads GeoRSS, preferring a place name over coordinates.
func location(item *gofeed.Item) string {
	geo, ok := item.Extensions["georss"]
	if !ok {
		return ""
	}
	for _, name := range []string{"featurename", "featureName", "point"} {
		for _, e := range geo[name] {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
