package events

import (
	"encoding/json"
)

// EventData is implemented by typed event payloads so publishers get
// type-safe construction while the bus stays schemaless.
type EventData interface {
	EventType() EventType
	ToMap() map[string]interface{}
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID        string `json:"run_id"`
	BusinessDate string `json:"business_date"`
	SymbolsTotal int    `json:"symbols_total"`
	Trigger      string `json:"trigger"` // "schedule" or "manual"
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType { return RunStarted }

// ToMap converts the payload to the bus wire shape
func (d *RunStartedData) ToMap() map[string]interface{} { return toMap(d) }

// RunFinishedData contains data for RunFinished events
type RunFinishedData struct {
	RunID         string   `json:"run_id"`
	BusinessDate  string   `json:"business_date"`
	Status        string   `json:"status"`
	SymbolsTotal  int      `json:"symbols_total"`
	RawCompleted  int      `json:"raw_completed"`
	RawFailed     int      `json:"raw_failed"`
	DerivedOK     int      `json:"derived_ok"`
	DerivedFailed int      `json:"derived_failed"`
	FailedSymbols []string `json:"failed_symbols,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

// EventType returns the event type for RunFinishedData
func (d *RunFinishedData) EventType() EventType { return RunFinished }

// ToMap converts the payload to the bus wire shape
func (d *RunFinishedData) ToMap() map[string]interface{} { return toMap(d) }

// RawStoredData contains data for RawStored events
type RawStoredData struct {
	RunID        string `json:"run_id"`
	Symbol       string `json:"symbol"`
	BusinessDate string `json:"business_date"`
	RowCount     int    `json:"row_count"`
}

// EventType returns the event type for RawStoredData
func (d *RawStoredData) EventType() EventType { return RawStored }

// ToMap converts the payload to the bus wire shape
func (d *RawStoredData) ToMap() map[string]interface{} { return toMap(d) }

// DerivedStoredData contains data for DerivedStored events
type DerivedStoredData struct {
	RunID        string `json:"run_id"`
	Symbol       string `json:"symbol"`
	BusinessDate string `json:"business_date"`
	LatencyMS    int64  `json:"latency_ms"`
}

// EventType returns the event type for DerivedStoredData
func (d *DerivedStoredData) EventType() EventType { return DerivedStored }

// ToMap converts the payload to the bus wire shape
func (d *DerivedStoredData) ToMap() map[string]interface{} { return toMap(d) }

// SymbolFailedData contains data for SymbolFailed events
type SymbolFailedData struct {
	RunID        string `json:"run_id"`
	Symbol       string `json:"symbol"`
	BusinessDate string `json:"business_date"`
	Phase        string `json:"phase"` // "raw" or "derived"
	Error        string `json:"error"`
	Attempts     int    `json:"attempts"`
}

// EventType returns the event type for SymbolFailedData
func (d *SymbolFailedData) EventType() EventType { return SymbolFailed }

// ToMap converts the payload to the bus wire shape
func (d *SymbolFailedData) ToMap() map[string]interface{} { return toMap(d) }

// ReportRenderedData contains data for ReportRendered events
type ReportRenderedData struct {
	Symbol       string `json:"symbol"`
	BusinessDate string `json:"business_date"`
	ReportKey    string `json:"report_key"`
}

// EventType returns the event type for ReportRenderedData
func (d *ReportRenderedData) EventType() EventType { return ReportRendered }

// ToMap converts the payload to the bus wire shape
func (d *ReportRenderedData) ToMap() map[string]interface{} { return toMap(d) }

// JobStateChangedData contains data for JobStateChanged events
type JobStateChangedData struct {
	JobID  string `json:"job_id"`
	Symbol string `json:"symbol"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// EventType returns the event type for JobStateChangedData
func (d *JobStateChangedData) EventType() EventType { return JobStateChanged }

// ToMap converts the payload to the bus wire shape
func (d *JobStateChangedData) ToMap() map[string]interface{} { return toMap(d) }

// toMap round-trips a typed payload through JSON. Event payloads are small;
// clarity wins over reflection tricks.
func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
