package entity

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// SnapshotRef identifies a persisted snapshot inside one storage backend.
type SnapshotRef int64

// SnapshotRecord is the persisted form of a CachedFeed. Images may come back
// from storage in any order.
type SnapshotRecord struct {
	Ref       SnapshotRef
	Timestamp time.Time
	Images    []FeedImageRecord
}

// FeedImageRecord is the persisted form of a FeedImage. Position is its
// zero-based index inside the parent snapshot.
type FeedImageRecord struct {
	ID          uuid.UUID
	Description *string
	Location    *string
	URL         string
	Position    int
}

func NewFeedImageRecord(image FeedImage, position int) FeedImageRecord {
	return FeedImageRecord{
		ID:          image.ID,
		Description: image.Description,
		Location:    image.Location,
		URL:         image.URL.String(),
		Position:    position,
	}
}

func (r FeedImageRecord) ToFeedImage() (FeedImage, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return FeedImage{}, fmt.Errorf("failed to parse image url [%s]: %w", r.ID, err)
	}
	return NewFeedImage(r.ID, r.Description, r.Location, u), nil
}
