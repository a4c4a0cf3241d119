package engine

import (
	"time"

	"github.com/quietriver/chaff/internal/catalog"
)

// Event describes one completed worker action. Events flow through the
// Broker to the CLI renderer, the status server and the history store.
type Event struct {
	Time      time.Time        `json:"time"`
	WorkerID  int              `json:"worker_id"`
	SessionID string           `json:"session_id"`
	Category  catalog.Category `json:"category"`
	Kind      catalog.Kind     `json:"kind"`
	URL       string           `json:"url"`
	Query     string           `json:"query,omitempty"`
	Delay     time.Duration    `json:"delay_ns"`
	Pacing    string           `json:"pacing"`
	Success   bool             `json:"success"`
	Escalated bool             `json:"escalated"`
	Chained   bool             `json:"chained"`
}
