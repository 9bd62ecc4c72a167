package agent

import (
	"sync"

	"arbagent/internal/models"
)

// reportHistory is a fixed-capacity ring buffer of cycle reports.
// Append-only; once full, the oldest report is evicted.
type reportHistory struct {
	mu   sync.Mutex
	buf  []models.CycleReport
	head int // next write position
	size int
}

func newReportHistory(capacity int) *reportHistory {
	return &reportHistory{buf: make([]models.CycleReport, capacity)}
}

func (h *reportHistory) append(r models.CycleReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = r
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// recent returns the last limit reports in chronological order.
// limit <= 0 or beyond the stored count returns everything retained.
func (h *reportHistory) recent(limit int) []models.CycleReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]models.CycleReport, 0, limit)
	start := h.head - limit
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

func (h *reportHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}
