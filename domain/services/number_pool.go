package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const (
	// PoolSize is the number of balls in a standard bingo pool
	PoolSize = 75

	// PoolMin and PoolMax bound the drawable range
	PoolMin = 1
	PoolMax = 75
)

// ErrPoolNotInitialized is returned when a pool operation targets a session
// that was never initialized. This is a programmer error, not a game state.
var ErrPoolNotInitialized = errors.New("number pool not initialized for session")

// numberPool holds one session's draw state. Invariant: the available and
// drawn sets are disjoint and together always cover exactly [PoolMin, PoolMax].
type numberPool struct {
	available []int
	drawn     []int
	drawTimes []time.Time
}

func newNumberPool() *numberPool {
	p := &numberPool{}
	p.reset()
	return p
}

func (p *numberPool) reset() {
	p.available = make([]int, 0, PoolSize)
	for n := PoolMin; n <= PoolMax; n++ {
		p.available = append(p.available, n)
	}
	p.drawn = nil
	p.drawTimes = nil
}

// NumberPoolRegistry implements interfaces.NumberPoolManager with in-memory
// pools keyed by session ID. Each pool is exclusively owned by its session's
// coordinator; the registry mutex only guards the map and pool mutations.
type NumberPoolRegistry struct {
	mu    sync.Mutex
	pools map[string]*numberPool
}

// NewNumberPoolRegistry creates an empty pool registry
func NewNumberPoolRegistry() *NumberPoolRegistry {
	return &NumberPoolRegistry{
		pools: make(map[string]*numberPool),
	}
}

// Initialize creates the session's pool with all numbers available. Calling
// it again for the same session performs a full reset.
func (r *NumberPoolRegistry) Initialize(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[sessionID]; ok {
		pool.reset()
		return
	}
	r.pools[sessionID] = newNumberPool()
}

// Draw removes one uniformly-random number from the available set.
// exhausted=true means all numbers have been drawn; callers treat that as
// the normal end of the game.
func (r *NumberPoolRegistry) Draw(sessionID string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[sessionID]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrPoolNotInitialized, sessionID)
	}

	if len(pool.available) == 0 {
		return 0, true, nil
	}

	idx, err := randomIndex(len(pool.available))
	if err != nil {
		return 0, false, fmt.Errorf("failed to pick random number: %w", err)
	}

	number := pool.available[idx]
	last := len(pool.available) - 1
	pool.available[idx] = pool.available[last]
	pool.available = pool.available[:last]
	pool.drawn = append(pool.drawn, number)
	pool.drawTimes = append(pool.drawTimes, time.Now())

	return number, false, nil
}

// Restore moves a drawn number back to the available set. Used to unwind a
// draw whose result could not be applied.
func (r *NumberPoolRegistry) Restore(sessionID string, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotInitialized, sessionID)
	}

	for i := len(pool.drawn) - 1; i >= 0; i-- {
		if pool.drawn[i] != number {
			continue
		}
		pool.drawn = append(pool.drawn[:i], pool.drawn[i+1:]...)
		if i < len(pool.drawTimes) {
			pool.drawTimes = append(pool.drawTimes[:i], pool.drawTimes[i+1:]...)
		}
		pool.available = append(pool.available, number)
		return nil
	}

	return fmt.Errorf("number %d was not drawn for session %s", number, sessionID)
}

// Shuffle is the manual operator reset to a full pool. Natural exhaustion
// must never trigger it; exhaustion happens exactly once per game and
// signals completion.
func (r *NumberPoolRegistry) Shuffle(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotInitialized, sessionID)
	}

	pool.reset()
	log.WithField("sessionID", sessionID).Info("Number pool reshuffled by operator")
	return nil
}

// Stats reports the pool's counters and average draw spacing
func (r *NumberPoolRegistry) Stats(sessionID string) (*interfaces.PoolStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotInitialized, sessionID)
	}

	return &interfaces.PoolStats{
		Total:                 PoolSize,
		Drawn:                 len(pool.drawn),
		Remaining:             len(pool.available),
		DrawCount:             len(pool.drawn),
		AverageDrawIntervalMs: averageIntervalMs(pool.drawTimes),
	}, nil
}

// Sync reconciles the pool with an authoritative drawn list: the available
// set becomes the full range minus the drawn numbers. Numbers outside the
// pool range are ignored.
func (r *NumberPoolRegistry) Sync(sessionID string, drawnNumbers []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[sessionID]
	if !ok {
		pool = newNumberPool()
		r.pools[sessionID] = pool
	}

	drawnSet := make(map[int]bool, len(drawnNumbers))
	pool.drawn = nil
	for _, n := range drawnNumbers {
		if n < PoolMin || n > PoolMax || drawnSet[n] {
			continue
		}
		drawnSet[n] = true
		pool.drawn = append(pool.drawn, n)
	}

	pool.available = pool.available[:0]
	for n := PoolMin; n <= PoolMax; n++ {
		if !drawnSet[n] {
			pool.available = append(pool.available, n)
		}
	}
	pool.drawTimes = nil

	return nil
}

// Release discards the session's pool
func (r *NumberPoolRegistry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, sessionID)
}

func randomIndex(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}

func averageIntervalMs(drawTimes []time.Time) float64 {
	if len(drawTimes) < 2 {
		return 0
	}
	total := drawTimes[len(drawTimes)-1].Sub(drawTimes[0])
	return float64(total.Milliseconds()) / float64(len(drawTimes)-1)
}
