package queue

import "github.com/ternarybob/playforge/internal/models"

// history is a bounded FIFO of submitted prompts. Actor-owned.
type history struct {
	size    int
	records []models.HistoryRecord
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 50
	}
	return &history{size: size, records: make([]models.HistoryRecord, 0, size)}
}

func (h *history) add(record models.HistoryRecord) {
	h.records = append(h.records, record)
	if over := len(h.records) - h.size; over > 0 {
		h.records = append(h.records[:0], h.records[over:]...)
	}
}

func (h *history) list() []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *history) lookup(requestID string) (models.HistoryRecord, bool) {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].RequestID == requestID {
			return h.records[i], true
		}
	}
	return models.HistoryRecord{}, false
}
