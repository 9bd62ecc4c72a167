package agent

import (
	"fmt"
	"sync"
	"time"

	"arbagent/internal/models"
)

// Caps on the bounded state collections.
const (
	maxActiveOpportunities = 5
	maxRecentTrades        = 10
	maxErrorLog            = 200
)

// IntegrationStatus is the last-known condition of one collaborator.
type IntegrationStatus struct {
	Status    string    `json:"status"` // "ok", "degraded", "error"
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// State is a read-only snapshot of the agent. Counters are monotonically
// non-decreasing within a process lifetime; the recent lists are
// most-recent-first and never exceed their caps.
type State struct {
	CycleCount            int                            `json:"cycle_count"`
	LastCycleAt           *time.Time                     `json:"last_cycle_at,omitempty"`
	OpportunitiesDetected int                            `json:"opportunities_detected"`
	TradesExecuted        int                            `json:"trades_executed"`
	TotalPnL              float64                        `json:"total_pnl"`
	Running               bool                           `json:"running"`
	ActiveOpportunities   []models.ArbitrageOpportunity  `json:"active_opportunities"`
	RecentTrades          []models.TradeResult           `json:"recent_trades"`
	Errors                []string                       `json:"errors"`
	IntegrationStatus     map[string]IntegrationStatus   `json:"integration_status"`
}

// stateHolder owns the single mutable agent state. Only the cycle engine and
// the loop controller write to it; everyone else gets snapshots.
type stateHolder struct {
	mu sync.RWMutex
	s  State
}

func newStateHolder() *stateHolder {
	return &stateHolder{s: State{
		ActiveOpportunities: []models.ArbitrageOpportunity{},
		RecentTrades:        []models.TradeResult{},
		Errors:              []string{},
		IntegrationStatus:   map[string]IntegrationStatus{},
	}}
}

// snapshot returns a deep copy safe to hand to callers.
func (h *stateHolder) snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.s
	out.ActiveOpportunities = append([]models.ArbitrageOpportunity(nil), h.s.ActiveOpportunities...)
	out.RecentTrades = append([]models.TradeResult(nil), h.s.RecentTrades...)
	out.Errors = append([]string(nil), h.s.Errors...)
	out.IntegrationStatus = make(map[string]IntegrationStatus, len(h.s.IntegrationStatus))
	for k, v := range h.s.IntegrationStatus {
		out.IntegrationStatus[k] = v
	}
	if h.s.LastCycleAt != nil {
		at := *h.s.LastCycleAt
		out.LastCycleAt = &at
	}
	return out
}

// cycleOutcome is everything one successful cycle commits to the state.
type cycleOutcome struct {
	completedAt   time.Time
	opportunities []models.ArbitrageOpportunity // sorted by score descending
	trade         *models.TradeResult
	pnl           float64
	errs          []string
}

// commit applies a cycle's outcome in one critical section, so concurrent
// readers never observe a half-updated cycle.
func (h *stateHolder) commit(out cycleOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.s.CycleCount++
	at := out.completedAt
	h.s.LastCycleAt = &at
	h.s.OpportunitiesDetected += len(out.opportunities)

	top := out.opportunities
	if len(top) > maxActiveOpportunities {
		top = top[:maxActiveOpportunities]
	}
	h.s.ActiveOpportunities = append([]models.ArbitrageOpportunity(nil), top...)

	if out.trade != nil {
		h.s.TradesExecuted++
		h.s.TotalPnL += out.pnl
		h.s.RecentTrades = append([]models.TradeResult{*out.trade}, h.s.RecentTrades...)
		if len(h.s.RecentTrades) > maxRecentTrades {
			h.s.RecentTrades = h.s.RecentTrades[:maxRecentTrades]
		}
	}

	h.appendErrorsLocked(out.errs)
}

func (h *stateHolder) appendErrorsLocked(errs []string) {
	for _, e := range errs {
		h.s.Errors = append(h.s.Errors, fmt.Sprintf("%s: %s", time.Now().UTC().Format(time.RFC3339), e))
	}
	if len(h.s.Errors) > maxErrorLog {
		h.s.Errors = h.s.Errors[len(h.s.Errors)-maxErrorLog:]
	}
}

func (h *stateHolder) appendErrors(errs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendErrorsLocked(errs)
}

func (h *stateHolder) setRunning(running bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.Running = running
}

func (h *stateHolder) setIntegrationStatus(name string, st IntegrationStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.IntegrationStatus[name] = st
}

func (h *stateHolder) cycleCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.CycleCount
}

func (h *stateHolder) totalPnL() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.TotalPnL
}
