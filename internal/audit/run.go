package audit

import "time"

// Status is the terminal outcome of a run.
type Status string

// Run statuses. Queued and Running only appear on job records.
const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusDegraded || s == StatusFailed
}

// State is a pipeline state machine position.
type State string

// Pipeline states in order.
const (
	StatePending      State = "PENDING"
	StateCacheCheck   State = "CACHE_CHECK"
	StateCapturing    State = "CAPTURING"
	StateExtracting   State = "EXTRACTING"
	StateSynthesizing State = "SYNTHESIZING"
	StatePersisting   State = "PERSISTING"
	StateReporting    State = "REPORTING"
	StateOK           State = "OK"
	StateDegraded     State = "DEGRADED"
	StateFailed       State = "FAILED"
)

// Keys is the deterministic key chain for one audit.
type Keys struct {
	Product  string `json:"product_key"`
	Snapshot string `json:"snapshot_key"`
	Run      string `json:"run_key"`
	Audit    string `json:"audit_key"`
	Render   string `json:"render_key"`
}

// SynthesisSource records which path produced the tickets.
type SynthesisSource string

// Synthesis sources.
const (
	SourceModel            SynthesisSource = "model"
	SourceRules            SynthesisSource = "rules"
	SourceFallback         SynthesisSource = "fallback"
	SourceInsufficientData SynthesisSource = "insufficient_data"
	SourceSkipped          SynthesisSource = "skipped"
)

// Export is the persisted, user-facing payload of a run.
type Export struct {
	Tickets          []Ticket        `json:"tickets"`
	Evidence         []Evidence      `json:"evidence"`
	ExecutiveSummary string          `json:"executive_summary"`
	Reasoning        string          `json:"reasoning"`
	Plan             Plan            `json:"plan"`
	Completeness     Completeness    `json:"completeness"`
	SynthesisSource  SynthesisSource `json:"synthesis_source"`
	Facts            *FactRecord     `json:"facts,omitempty"`
}

// ReportRef locates generated report files.
type ReportRef struct {
	CSVPath    string `json:"csv_path"`
	CSVURL     string `json:"csv_url"`
	ExportPath string `json:"export_path"`
	ExportURL  string `json:"export_url"`
}

// Run is the result of one pipeline execution.
type Run struct {
	Keys
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url"`
	Mode          Mode       `json:"mode"`
	Locale        string     `json:"locale"`
	Viewports     []Viewport `json:"viewports"`
	Status        Status     `json:"status"`
	State         State      `json:"state"`
	Errors        []Error    `json:"errors"`
	Export        *Export    `json:"export,omitempty"`
	Report        *ReportRef `json:"report,omitempty"`
	CacheHit      bool       `json:"cache_hit"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

// ProductRecord is persisted under the product key.
type ProductRecord struct {
	Key           string    `json:"product_key"`
	NormalizedURL string    `json:"normalized_url"`
	Mode          Mode      `json:"mode"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SnapshotRecord is persisted under the snapshot key.
type SnapshotRecord struct {
	Key          string       `json:"snapshot_key"`
	ProductKey   string       `json:"product_key"`
	Locale       string       `json:"locale"`
	Viewports    []Viewport   `json:"viewports"`
	Completeness Completeness `json:"completeness"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// SourceRecord stores per-viewport artifact locations under a snapshot.
type SourceRecord struct {
	SnapshotKey   string    `json:"snapshot_key"`
	Viewport      Viewport  `json:"viewport"`
	FinalURL      string    `json:"final_url"`
	StatusCode    int       `json:"status_code"`
	ScreenshotURL string    `json:"screenshot_url"`
	MarkupURL     string    `json:"markup_url"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RunRecord is persisted under the run key.
type RunRecord struct {
	Key         string    `json:"run_key"`
	SnapshotKey string    `json:"snapshot_key"`
	Status      Status    `json:"status"`
	Errors      []Error   `json:"errors"`
	Export      *Export   `json:"export,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobRecord tracks the audit request under the audit key.
type JobRecord struct {
	Key        string    `json:"audit_key"`
	RunKey     string    `json:"run_key"`
	RenderKey  string    `json:"render_key"`
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	CopyReady  bool      `json:"copy_ready"`
	WhiteLabel bool      `json:"white_label"`
	RequestID  string    `json:"request_id,omitempty"`
	ErrorText  string    `json:"error_text,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
