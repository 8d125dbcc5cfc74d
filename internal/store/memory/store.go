// Package memory provides an in-memory website record store, used by
// tests and the CLI's dry-run mode.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlasdir/site-crawler/internal/crawler"
)

// Store keeps website records in process memory, keyed by ID with a
// domain index.
type Store struct {
	mu       sync.RWMutex
	records  map[string]crawler.WebsiteRecord
	byDomain map[string]string
	nextID   int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records:  make(map[string]crawler.WebsiteRecord),
		byDomain: make(map[string]string),
	}
}

// FindByDomain looks a record up by its domain key.
func (s *Store) FindByDomain(_ context.Context, domain string) (crawler.WebsiteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDomain[domain]
	if !ok {
		return crawler.WebsiteRecord{}, crawler.ErrRecordNotFound
	}
	return s.records[id], nil
}

// Save inserts or replaces a record and returns its ID.
func (s *Store) Save(_ context.Context, record crawler.WebsiteRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		if existing, ok := s.byDomain[record.Domain]; ok {
			record.ID = existing
		} else {
			s.nextID++
			record.ID = fmt.Sprintf("mem-%d", s.nextID)
		}
	}
	s.records[record.ID] = record
	s.byDomain[record.Domain] = record.ID
	return record.ID, nil
}

// UpdateCrawlStatus reconciles a crawl outcome into the stored record.
// Technologies are union-merged: once detected, never retracted.
func (s *Store) UpdateCrawlStatus(_ context.Context, id string, status crawler.CrawlStatus, update crawler.CrawlStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return crawler.ErrRecordNotFound
	}

	record.Technologies = unionTechnologies(record.Technologies, update.Technologies)
	if update.Metadata != nil {
		record.Metadata = *update.Metadata
	}
	record.LastCrawledAt = update.CrawledAt
	record.LastCrawlStatus = status
	record.LastCrawlError = update.ErrorText

	s.records[id] = record
	return nil
}

func unionTechnologies(existing, detected []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(detected))
	for _, t := range existing {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range detected {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
