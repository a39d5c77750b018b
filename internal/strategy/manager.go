// Package strategy maintains per-user strategy definitions and active
// symbol selections, and implements the reference on_tick signal rule.
//
// Strategies and selections are cached in memory per user and written
// through to the store on every mutation: reads never touch the database,
// but no mutation is acknowledged to a caller until it is durable.
package strategy

import (
	"context"
	"log/slog"
	"sync"

	"hedgexd/internal/store"
	"hedgexd/pkg/types"
)

// Manager owns the cached strategy and selection state for every user.
type Manager struct {
	store  *store.Store
	logger *slog.Logger

	mu         sync.RWMutex
	strategies map[string]types.StrategyParams   // strategy id -> params
	byUser     map[string]map[string]bool        // user id -> set of strategy ids
	selections map[string]map[string]types.StockSelection // user id -> symbol -> selection
}

// NewManager builds a Manager and hydrates its cache from the store.
// It loads every enabled strategy (the engine's working set) plus, for
// each user that owns one, that user's full strategy list and active
// selections, so CRUD operations issued later always see a warm cache.
func NewManager(ctx context.Context, st *store.Store, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		store:      st,
		logger:     logger.With("component", "strategy"),
		strategies: make(map[string]types.StrategyParams),
		byUser:     make(map[string]map[string]bool),
		selections: make(map[string]map[string]types.StockSelection),
	}

	enabled, err := st.EnabledStrategies(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range enabled {
		m.cacheStrategyLocked(p)
		seen[p.UserID] = true
	}

	for userID := range seen {
		if err := m.hydrateUserLocked(ctx, userID); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Manager) cacheStrategyLocked(p types.StrategyParams) {
	m.strategies[p.ID] = p
	if m.byUser[p.UserID] == nil {
		m.byUser[p.UserID] = make(map[string]bool)
	}
	m.byUser[p.UserID][p.ID] = true
}

// hydrateUserLocked loads a user's full strategy list and active
// selections into the cache. Callers must not hold m.mu.
func (m *Manager) hydrateUserLocked(ctx context.Context, userID string) error {
	strategies, err := m.store.StrategiesForUser(ctx, userID)
	if err != nil {
		return err
	}
	selections, err := m.store.ActiveSelectionsForUser(ctx, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range strategies {
		m.cacheStrategyLocked(p)
	}
	selMap := make(map[string]types.StockSelection, len(selections))
	for _, sel := range selections {
		selMap[sel.Symbol] = sel
	}
	m.selections[userID] = selMap
	return nil
}

// ensureUserLoaded hydrates a user's cache on first touch. Strategy and
// selection mutations always originate from an authenticated user action,
// so lazily warming the cache here keeps CRUD correct even for a user that
// owned no enabled strategy at boot.
func (m *Manager) ensureUserLoaded(ctx context.Context, userID string) error {
	m.mu.RLock()
	_, ok := m.selections[userID]
	m.mu.RUnlock()
	if ok {
		return nil
	}
	return m.hydrateUserLocked(ctx, userID)
}

// CreateStrategy persists a new strategy and adds it to the cache.
func (m *Manager) CreateStrategy(ctx context.Context, p types.StrategyParams) error {
	if err := m.ensureUserLoaded(ctx, p.UserID); err != nil {
		return err
	}
	if err := m.store.CreateStrategy(ctx, p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheStrategyLocked(p)
	return nil
}

// UpdateStrategy persists changes to an existing strategy and refreshes the cache.
func (m *Manager) UpdateStrategy(ctx context.Context, p types.StrategyParams) error {
	if err := m.store.UpdateStrategy(ctx, p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheStrategyLocked(p)
	return nil
}

// DisableStrategy soft-deletes a strategy (store and cache).
func (m *Manager) DisableStrategy(ctx context.Context, userID, strategyID string) error {
	if err := m.store.DisableStrategy(ctx, userID, strategyID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.strategies[strategyID]; ok {
		p.Enabled = false
		m.strategies[strategyID] = p
	}
	return nil
}

// Strategy returns a cached strategy by id.
func (m *Manager) Strategy(strategyID string) (types.StrategyParams, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.strategies[strategyID]
	return p, ok
}

// EnabledStrategyIDs returns the ids of every cached enabled strategy,
// the set the engine evaluates on each tick.
func (m *Manager) EnabledStrategyIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.strategies))
	for id, p := range m.strategies {
		if p.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetSelection activates or updates a user's selection of a symbol.
func (m *Manager) SetSelection(ctx context.Context, sel types.StockSelection) error {
	if err := m.ensureUserLoaded(ctx, sel.UserID); err != nil {
		return err
	}
	if err := m.store.UpsertSelection(ctx, sel); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selections[sel.UserID] == nil {
		m.selections[sel.UserID] = make(map[string]types.StockSelection)
	}
	m.selections[sel.UserID][sel.Symbol] = sel
	return nil
}

// DeactivateSelection soft-deletes a user's selection of a symbol.
func (m *Manager) DeactivateSelection(ctx context.Context, userID, symbol string) error {
	if err := m.store.Deactivate(ctx, userID, symbol); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sel, ok := m.selections[userID][symbol]; ok {
		sel.Active = false
		m.selections[userID][symbol] = sel
	}
	return nil
}

// isActiveLocked reports whether a symbol is an active selection for a
// user. Callers must hold at least a read lock.
func (m *Manager) isActiveLocked(userID, symbol string) bool {
	sel, ok := m.selections[userID][symbol]
	return ok && sel.Active
}
