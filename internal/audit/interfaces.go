package audit

import (
	"context"
	"encoding/json"
	"time"
)

// CaptureAdapter renders one viewport of a page. Failures are returned as
// *CaptureError whenever the adapter can classify them.
type CaptureAdapter interface {
	Capture(ctx context.Context, url string, viewport Viewport, opts CaptureOptions) (Artifact, error)
}

// ArtifactUploader stores capture outputs under a key namespace.
type ArtifactUploader interface {
	Upload(
		ctx context.Context,
		namespace string,
		viewport Viewport,
		kind ArtifactKind,
		data []byte,
		opts UploadOptions,
	) (UploadResult, error)
}

// LanguageModel returns a JSON document shaped by the supplied schema.
type LanguageModel interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (json.RawMessage, error)
}

// RecordStore upserts and reads the five persisted entity kinds.
type RecordStore interface {
	UpsertProduct(ctx context.Context, rec ProductRecord) error
	UpsertSnapshot(ctx context.Context, rec SnapshotRecord) error
	UpsertSource(ctx context.Context, rec SourceRecord) error
	UpsertRun(ctx context.Context, rec RunRecord) error
	UpsertJob(ctx context.Context, rec JobRecord) error
	GetRun(ctx context.Context, runKey string) (RunRecord, error)
	GetJob(ctx context.Context, auditKey string) (JobRecord, error)
}

// Reporter turns a finished run into downloadable files.
type Reporter interface {
	Generate(ctx context.Context, run Run) (ReportRef, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Job wraps an audit request ready to run.
type Job struct {
	AuditKey  string
	Request   Request
	Attempt   int
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for audit jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}
