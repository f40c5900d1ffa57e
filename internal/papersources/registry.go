package papersources

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/paper-discovery-service/internal/domain"
)

// SourceResult holds the result of a search from one source.
type SourceResult struct {
	// Source identifies which paper source provided the result.
	Source domain.SourceType

	// Result contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Result *SearchResult

	// Error contains the error if the search failed.
	// Will be nil if Result is non-nil.
	Error error
}

// Registry manages paper sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of paper sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it will be replaced.
// This method is thread-safe.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
// This method is thread-safe.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns only enabled sources.
// The returned slice is a snapshot and is safe to iterate even if
// sources are added or removed concurrently.
// This method is thread-safe.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// Resolve maps requested source types to registered, enabled sources.
// Unknown or disabled sources are skipped. If sourceTypes is empty,
// all enabled sources are returned.
func (r *Registry) Resolve(sourceTypes []domain.SourceType) []PaperSource {
	if len(sourceTypes) == 0 {
		return r.EnabledSources()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(sourceTypes))
	for _, st := range sourceTypes {
		if source, ok := r.sources[st]; ok && source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SearchStream launches one concurrent search per source and returns a
// channel carrying one SourceResult per source. Each call is independently
// bounded by perSourceTimeout when positive, in addition to any deadline on
// ctx. The channel is buffered for all sources and closed once every search
// finishes, so a caller that stops reading early (e.g., at a global timeout)
// leaks no goroutines; the abandoned results are simply discarded.
// This method is thread-safe.
func (r *Registry) SearchStream(ctx context.Context, params SearchParams, sources []PaperSource, perSourceTimeout time.Duration) <-chan SourceResult {
	resultChan := make(chan SourceResult, len(sources))
	if len(sources) == 0 {
		close(resultChan)
		return resultChan
	}

	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(s PaperSource) {
			defer wg.Done()

			callCtx := ctx
			if perSourceTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, perSourceTimeout)
				defer cancel()
			}

			result, err := s.Search(callCtx, params)
			resultChan <- SourceResult{
				Source: s.SourceType(),
				Result: result,
				Error:  err,
			}
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}
