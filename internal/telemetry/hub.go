package telemetry

import (
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rjboer/GoSyspower/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultHistoryLimit = 4096
	maxHistoryLimit     = 1 << 20
)

// Curve is a template as served for diagnostic plotting. Masked samples
// carry a zero value and are listed in Mask.
type Curve struct {
	Antenna  string    `json:"antenna"`
	Baseband int       `json:"baseband"`
	Pol      int       `json:"pol"`
	Times    []float64 `json:"times"`
	Values   []float64 `json:"values"`
	Mask     []bool    `json:"mask"`
}

// Entry is a recorded template report.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Stats     TemplateStats `json:"stats"`
}

// Hub keeps the telemetry of the latest run for the web server and the
// command summary.
type Hub struct {
	mu           sync.RWMutex
	history      []Entry
	historyLimit int
	outcomes     []OutcomeStats
	curves       []Curve
	logger       logging.Logger
}

// NewHub builds a hub that keeps at most historyLimit template reports.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if historyLimit > maxHistoryLimit {
		historyLimit = maxHistoryLimit
	}
	return &Hub{historyLimit: historyLimit, logger: logging.OrDefault(logger)}
}

// ReportTemplate implements Reporter.
func (h *Hub) ReportTemplate(s TemplateStats) {
	h.mu.Lock()
	h.history = append(h.history, Entry{Timestamp: time.Now(), Stats: s})
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	h.mu.Unlock()
}

// ReportOutcome implements Reporter.
func (h *Hub) ReportOutcome(o OutcomeStats) {
	h.mu.Lock()
	h.outcomes = append(h.outcomes, o)
	h.mu.Unlock()
}

// SetCurves replaces the templates served for plotting.
func (h *Hub) SetCurves(curves []Curve) {
	h.mu.Lock()
	h.curves = curves
	h.mu.Unlock()
}

// History returns a copy of stored template reports.
func (h *Hub) History() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.history))
	copy(out, h.history)
	return out
}

// Outcomes returns a copy of the recorded write-backs.
func (h *Hub) Outcomes() []OutcomeStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]OutcomeStats, len(h.outcomes))
	copy(out, h.outcomes)
	return out
}

// Curves returns the stored templates, optionally restricted to one antenna.
func (h *Hub) Curves(antenna string) []Curve {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Curve, 0, len(h.curves))
	for _, c := range h.curves {
		if antenna == "" || c.Antenna == antenna {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.History())
}

func (h *Hub) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.Outcomes())
}

func (h *Hub) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.Curves(r.URL.Query().Get("antenna")))
}

func (h *Hub) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode telemetry response", logging.F("err", err))
	}
}
