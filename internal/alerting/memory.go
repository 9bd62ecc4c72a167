package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbagent/internal/logger"
	"arbagent/internal/models"
)

// MemoryAlerter records alerts without delivering them anywhere. Used when
// Telegram is disabled and as the test double.
type MemoryAlerter struct {
	mu      sync.Mutex
	history []models.AlertRecord
}

// NewMemoryAlerter creates an in-memory alerter.
func NewMemoryAlerter() *MemoryAlerter { return &MemoryAlerter{} }

// Name implements the integration lifecycle contract.
func (a *MemoryAlerter) Name() string { return "alerter" }

func (a *MemoryAlerter) Initialize(ctx context.Context) error  { return nil }
func (a *MemoryAlerter) HealthCheck(ctx context.Context) error { return nil }
func (a *MemoryAlerter) Shutdown(ctx context.Context) error    { return nil }

// SendAlert logs the alert and records it in history.
func (a *MemoryAlerter) SendAlert(ctx context.Context, message, severity, opportunityID string) (models.AlertRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.AlertRecord{}, err
	}
	rec := models.AlertRecord{
		ID:            uuid.New().String(),
		Message:       message,
		Severity:      severity,
		OpportunityID: opportunityID,
		SentAt:        time.Now(),
		Delivered:     true,
	}

	a.mu.Lock()
	a.history = append(a.history, rec)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
	a.mu.Unlock()

	logger.Warn("ALERT [%s]: %s", severity, message)
	return rec, nil
}

// History returns sent alerts, most recent first.
func (a *MemoryAlerter) History(limit int) []models.AlertRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return reversedTail(a.history, limit)
}
