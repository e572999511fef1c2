// Package diagnostic collects the decision trail of a pricing request.
package diagnostic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/Veraticus/rexpenalty/internal/service"
	"github.com/diegoholiveira/jsonlogic/v3"
)

// NoRecordMarker is recorded for a fare component that matched no rule record.
const NoRecordMarker = "ERROR: NO RECORD3 FOR THIS FARE COMPONENT!"

// Recorder is a diagnostic sink that keeps every record passing its filter.
// It is safe for concurrent use.
type Recorder struct {
	filter  []byte
	records []model.DiagnosticRecord
	dropped int
	mu      sync.Mutex
}

// NewRecorder creates a recorder. An empty filter keeps every record; otherwise
// the filter is a JSONLogic expression evaluated against each record's JSON
// form, for example {"==": [{"var": "kind"}, "check"]}.
func NewRecorder(filter string) (*Recorder, error) {
	r := &Recorder{}
	if strings.TrimSpace(filter) == "" {
		return r, nil
	}
	if !json.Valid([]byte(filter)) || !jsonlogic.IsValid(strings.NewReader(filter)) {
		return nil, fmt.Errorf("%w: diagnostic filter is not a JSONLogic expression", common.ErrInvalidConfig)
	}
	r.filter = []byte(filter)
	return r, nil
}

// Active implements service.DiagnosticSink. A recorder is always collecting.
func (r *Recorder) Active() bool {
	return true
}

// Record implements service.DiagnosticSink.
func (r *Recorder) Record(rec model.DiagnosticRecord) {
	keep, err := r.matches(rec)
	if err != nil {
		slog.Warn("Diagnostic filter failed, keeping record", "kind", rec.Kind, "error", err)
		keep = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !keep {
		r.dropped++
		return
	}
	r.records = append(r.records, rec)
}

func (r *Recorder) matches(rec model.DiagnosticRecord) (bool, error) {
	if r.filter == nil {
		return true, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal record: %w", err)
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(r.filter), bytes.NewReader(data), &result); err != nil {
		return false, fmt.Errorf("failed to apply filter: %w", err)
	}
	return truthy(result.Bytes()), nil
}

// truthy follows JSONLogic truthiness for a JSON-encoded result.
func truthy(raw []byte) bool {
	var v any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// Records returns a copy of the kept records in arrival order.
func (r *Recorder) Records() []model.DiagnosticRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DiagnosticRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Dropped returns how many records the filter rejected.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.dropped = 0
}

// ReportMissingMatches records the no-record marker for every listed fare
// component. Nothing is recorded on an inactive or nil sink.
func ReportMissingMatches(sink service.DiagnosticSink, fareComponentIDs []string) {
	if sink == nil || !sink.Active() {
		return
	}
	for _, id := range fareComponentIDs {
		sink.Record(model.DiagnosticRecord{
			Kind:            model.DiagNoRecord,
			FareComponentID: id,
			Detail:          NoRecordMarker,
		})
	}
}
