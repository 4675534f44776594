package entity

import (
	"testing"

	"github.com/google/uuid"
)

func TestFeedImageRecord_RoundTrip(t *testing.T) {
	description := "a description"
	image := NewFeedImage(uuid.New(), &description, nil, mustParseURL(t, "https://example.tld/a.png?size=2"))

	record := NewFeedImageRecord(image, 3)
	if record.Position != 3 {
		t.Errorf("expected position 3, got %d", record.Position)
	}
	if record.URL != "https://example.tld/a.png?size=2" {
		t.Errorf("expected url 'https://example.tld/a.png?size=2', got '%s'", record.URL)
	}

	got, err := record.ToFeedImage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != image.ID {
		t.Errorf("expected id %v, got %v", image.ID, got.ID)
	}
	if got.Description == nil || *got.Description != description {
		t.Errorf("expected description %q, got %v", description, got.Description)
	}
	if got.Location != nil {
		t.Errorf("expected nil location, got %q", *got.Location)
	}
	if got.URL.String() != image.URL.String() {
		t.Errorf("expected url %s, got %s", image.URL, got.URL)
	}
}

func TestFeedImageRecord_ToFeedImage_InvalidURL(t *testing.T) {
	record := FeedImageRecord{ID: uuid.New(), URL: "://bad"}
	if _, err := record.ToFeedImage(); err == nil {
		t.Error("expected error for invalid url, got nil")
	}
}
