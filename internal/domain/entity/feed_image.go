package entity

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// FeedImage is a single image entry as callers see it.
type FeedImage struct {
	ID          uuid.UUID
	Description *string
	Location    *string
	URL         *url.URL
}

func NewFeedImage(id uuid.UUID, description, location *string, imageURL *url.URL) FeedImage {
	return FeedImage{
		ID:          id,
		Description: description,
		Location:    location,
		URL:         imageURL,
	}
}

// IsValid reports whether the image carries the fields a snapshot requires.
func (f FeedImage) IsValid() bool {
	return f.ID != uuid.Nil && f.URL != nil && f.URL.IsAbs()
}

// CachedFeed is the one snapshot a feed store can hold.
type CachedFeed struct {
	Feed      []FeedImage
	Timestamp time.Time
}

// IsExpired reports whether the snapshot is at least maxAge old at now.
func (c *CachedFeed) IsExpired(now time.Time, maxAge time.Duration) bool {
	return !now.Before(c.Timestamp.Add(maxAge))
}
