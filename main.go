package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedcache/internal/application"
	"feedcache/internal/infrastructure/rss"
	"feedcache/internal/infrastructure/scraper"
	"feedcache/internal/infrastructure/storage"
	"feedcache/internal/interfaces/config"
)

func main() {
	fmt.Println("Starting feed cache...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	snapshots, err := storage.Open(cfg.GetStoreBackend(), cfg.StoreDSN)
	if err != nil {
		log.Fatal("Failed to open storage:", err)
	}
	log.Printf("Using %s storage", cfg.GetStoreBackend())

	store := application.NewFeedStore(snapshots)
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var previews scraper.PreviewFetcher
	if cfg.FetchImagePreview {
		previews = scraper.NewPreviewFetcher(cfg.GetHTTPTimeout())
	}
	feedRepo := rss.NewFeedRepository(previews)

	service := application.NewFeedCacheService(feedRepo, store, cfg.GetCacheMaxAge(), nil)

	if err := service.ValidateCache(ctx); err != nil {
		log.Printf("Cache validation error: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutdown signal received")
		cancel()
	}()

	interval := cfg.GetFetchInterval()
	log.Printf("RSS fetch interval: %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh(ctx, service, cfg.RSSURL)

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down...")
			return
		case <-ticker.C:
			refresh(ctx, service, cfg.RSSURL)
		}
	}
}

func refresh(ctx context.Context, service *application.FeedCacheService, rssURLs []string) {
	log.Println("Fetching RSS feeds...")
	if _, err := service.Refresh(ctx, rssURLs); err != nil {
		log.Printf("Feed refresh error: %v", err)
		return
	}

	feed, err := service.Load(ctx)
	if err != nil {
		log.Printf("Failed to read back cached feed: %v", err)
		return
	}
	log.Printf("Cache holds %d images", len(feed))
}
