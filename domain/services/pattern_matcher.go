package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// batchWorkers bounds the goroutines used for batch cartela evaluation
const batchWorkers = 8

type patternCacheEntry struct {
	patterns  []*entities.WinPattern
	fetchedAt time.Time
}

// patternMatcher implements interfaces.PatternMatcher with a per-shop TTL
// cache over the pattern store
type patternMatcher struct {
	patternRepo interfaces.PatternRepository
	ttl         time.Duration

	mu    sync.RWMutex
	cache map[string]*patternCacheEntry
}

// NewPatternMatcher creates a pattern matcher caching patterns for ttl
func NewPatternMatcher(patternRepo interfaces.PatternRepository, ttl time.Duration) interfaces.PatternMatcher {
	return &patternMatcher{
		patternRepo: patternRepo,
		ttl:         ttl,
		cache:       make(map[string]*patternCacheEntry),
	}
}

// Evaluate matches one grid against the shop's active patterns
func (m *patternMatcher) Evaluate(ctx context.Context, shopID string, grid [entities.GridSize][entities.GridSize]int, drawnNumbers []int) (*entities.VerificationResult, error) {
	patterns, err := m.activePatterns(ctx, shopID)
	if err != nil {
		return nil, err
	}

	return EvaluateGrid(grid, drawnNumbers, patterns), nil
}

// EvaluateBatch matches many cartelas independently against one shared
// pattern snapshot. A malformed cartela produces a non-winning result for
// that cartela only and never aborts the rest of the batch.
func (m *patternMatcher) EvaluateBatch(ctx context.Context, shopID string, cartelas []*entities.Cartela, drawnNumbers []int) (map[string]*entities.VerificationResult, error) {
	patterns, err := m.activePatterns(ctx, shopID)
	if err != nil {
		return nil, err
	}

	results := make([]*entities.VerificationResult, len(cartelas))

	var wg sync.WaitGroup
	sem := make(chan struct{}, batchWorkers)
	for i, cartela := range cartelas {
		wg.Add(1)
		go func(i int, cartela *entities.Cartela) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := cartela.Validate(); err != nil {
				log.WithError(err).WithField("cartelaID", cartela.ID).Warn("Skipping malformed cartela in batch evaluation")
				results[i] = &entities.VerificationResult{VerifiedAt: time.Now().UTC()}
				return
			}
			results[i] = EvaluateGrid(cartela.Grid, drawnNumbers, patterns)
		}(i, cartela)
	}
	wg.Wait()

	byID := make(map[string]*entities.VerificationResult, len(cartelas))
	for i, cartela := range cartelas {
		byID[cartela.ID] = results[i]
	}
	return byID, nil
}

// Invalidate drops the cached pattern set for a shop. Must be called when
// the shop's patterns change; the TTL only covers missed invalidations.
func (m *patternMatcher) Invalidate(shopID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, shopID)
}

// activePatterns returns the shop's active patterns, served from cache
// while fresh
func (m *patternMatcher) activePatterns(ctx context.Context, shopID string) ([]*entities.WinPattern, error) {
	m.mu.RLock()
	entry, ok := m.cache[shopID]
	m.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < m.ttl {
		return entry.patterns, nil
	}

	patterns, err := m.patternRepo.GetActiveByShop(ctx, shopID)
	if err != nil {
		// Serve a stale snapshot over failing the evaluation outright
		if ok {
			log.WithError(err).WithField("shopID", shopID).Warn("Pattern refresh failed, serving stale cache")
			return entry.patterns, nil
		}
		return nil, fmt.Errorf("failed to load win patterns: %w", err)
	}

	m.mu.Lock()
	m.cache[shopID] = &patternCacheEntry{patterns: patterns, fetchedAt: time.Now()}
	m.mu.Unlock()

	return patterns, nil
}

// EvaluateGrid evaluates a single grid against every active pattern and
// aggregates all satisfied patterns, not just the first. The center cell
// always counts as matched.
func EvaluateGrid(grid [entities.GridSize][entities.GridSize]int, drawnNumbers []int, patterns []*entities.WinPattern) *entities.VerificationResult {
	drawnSet := make(map[int]bool, len(drawnNumbers))
	for _, n := range drawnNumbers {
		drawnSet[n] = true
	}

	result := &entities.VerificationResult{
		VerifiedAt: time.Now().UTC(),
	}

	union := make(map[int]bool)
	for _, pattern := range patterns {
		if !pattern.Active {
			continue
		}
		matched, ok := pattern.MatchAgainst(grid, drawnSet)
		if !ok {
			continue
		}

		result.IsWinner = true
		result.MatchedPatternIDs = append(result.MatchedPatternIDs, pattern.ID)
		result.MatchedPatternNames = append(result.MatchedPatternNames, pattern.Name)
		result.PerPattern = append(result.PerPattern, entities.PatternMatch{
			PatternID:      pattern.ID,
			PatternName:    pattern.Name,
			MatchedNumbers: matched,
		})
		for _, n := range matched {
			union[n] = true
		}
	}

	if len(union) > 0 {
		result.MatchedNumbers = make([]int, 0, len(union))
		for n := range union {
			result.MatchedNumbers = append(result.MatchedNumbers, n)
		}
		sort.Ints(result.MatchedNumbers)
	}

	return result
}
