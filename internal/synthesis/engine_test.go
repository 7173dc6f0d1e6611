package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

type fakeModel struct {
	mu     sync.Mutex
	raw    func(candidates []audit.Ticket) json.RawMessage
	err    error
	delay  time.Duration
	calls  int
	system string
	user   string
	schema map[string]any
}

func (f *fakeModel) GenerateStructured(ctx context.Context, system, user string, schema map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.system, f.user, f.schema = system, user, schema
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var payload promptPayload
	if err := json.Unmarshal([]byte(user), &payload); err != nil {
		return nil, err
	}
	return f.raw(payload.CandidateTickets), nil
}

func brokenFacts() audit.FactRecord {
	f := healthyFacts()
	f.Product.HasCTA = false
	f.Structural.HasReviews = false
	return f
}

func newEngine(opts ...Option) *Engine {
	return NewEngine(DefaultConfig(), zap.NewNop(), opts...)
}

func TestSynthesizeRulesOnly(t *testing.T) {
	t.Parallel()
	out := newEngine().Synthesize(context.Background(), input(brokenFacts()))

	require.NoError(t, out.Err)
	assert.Equal(t, audit.SourceRules, out.Source)
	require.Len(t, out.Tickets, 2)
	assert.Equal(t, "T_solo_offer_clarity_SIG_MISSING_CTA_pdp_01", out.Tickets[0].ID)
	assert.Equal(t, catalog(), out.Evidence)
	assert.Contains(t, out.Reasoning, "R01_MISSING_CTA")
	assertReferentialIntegrity(t, out)
}

func TestSynthesizeModelApproved(t *testing.T) {
	t.Parallel()
	model := &fakeModel{}
	model.raw = func(candidates []audit.Ticket) json.RawMessage {
		return modelResponse(t, []map[string]any{modelTicketMap(candidates[1])}, nil)
	}
	out := newEngine(WithModel(model)).Synthesize(context.Background(), input(brokenFacts()))

	require.NoError(t, out.Err)
	assert.Equal(t, audit.SourceModel, out.Source)
	require.Len(t, out.Tickets, 1)
	assert.Equal(t, "T_solo_trust_SIG_MISSING_REVIEWS_pdp_01", out.Tickets[0].ID)
	assert.True(t, out.Tickets[0].QuickWin)
	assert.Equal(t, []string{out.Tickets[0].ID}, out.Plan.QuickWins)
	assert.Equal(t, "Two fixes unlock most of the upside.", out.ExecutiveSummary)
	assert.Contains(t, model.system, `"en-US"`)
	assert.Contains(t, model.user, mobileShot)
	assert.Equal(t, "object", model.schema["type"])
	assertReferentialIntegrity(t, out)
}

func TestSynthesizeFallsBackOnInvalidModelOutput(t *testing.T) {
	t.Parallel()
	model := &fakeModel{}
	model.raw = func(candidates []audit.Ticket) json.RawMessage {
		bad := modelTicketMap(candidates[0])
		bad["evidence_refs"] = []string{"E_page_a_mobile_screenshot_hallucinated_01"}
		return modelResponse(t, []map[string]any{bad}, nil)
	}
	out := newEngine(WithModel(model)).Synthesize(context.Background(), input(brokenFacts()))

	var ve *ValidationError
	require.True(t, errors.As(out.Err, &ve))
	assert.Equal(t, audit.SourceFallback, out.Source)
	assert.Equal(t, FallbackSummary, out.ExecutiveSummary)
	require.Len(t, out.Tickets, 2)
	assertReferentialIntegrity(t, out)
}

func TestSynthesizeFallsBackOnModelError(t *testing.T) {
	t.Parallel()
	model := &fakeModel{err: errors.New("upstream 529")}
	out := newEngine(WithModel(model)).Synthesize(context.Background(), input(brokenFacts()))

	require.ErrorContains(t, out.Err, "upstream 529")
	assert.Equal(t, audit.SourceFallback, out.Source)
	assert.Len(t, out.Tickets, 2)
}

func TestSynthesizeModelTimeout(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ModelTimeout = 20 * time.Millisecond
	model := &fakeModel{delay: time.Second}
	out := NewEngine(cfg, zap.NewNop(), WithModel(model)).Synthesize(context.Background(), input(brokenFacts()))

	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, audit.SourceFallback, out.Source)
}

func TestFallbackWithoutCandidatesEmitsGenericTicket(t *testing.T) {
	t.Parallel()
	model := &fakeModel{err: errors.New("boom")}
	out := newEngine(WithModel(model)).Synthesize(context.Background(), input(healthyFacts()))

	require.Len(t, out.Tickets, 1)
	assert.Equal(t, "T_solo_ux_SIG_MANUAL_REVIEW_pdp_01", out.Tickets[0].ID)
	assert.Equal(t, []string{mobileShot}, out.Tickets[0].EvidenceRefs)
	assertReferentialIntegrity(t, out)
}

func TestSynthesizeInsufficientDataShortCircuit(t *testing.T) {
	t.Parallel()
	model := &fakeModel{err: errors.New("must not be called")}
	f := healthyFacts()
	f.Product.Title = ""
	f.Product.Price = nil
	f.Product.HasCTA = false
	in := input(f)
	in.Evidence = in.Evidence[1:]

	out := newEngine(WithModel(model)).Synthesize(context.Background(), in)
	require.NoError(t, out.Err)
	assert.Equal(t, audit.SourceInsufficientData, out.Source)
	assert.Zero(t, model.calls)
	require.Len(t, out.Tickets, 1)
	tk := out.Tickets[0]
	assert.Equal(t, "T_solo_data_quality_SIG_INSUFFICIENT_DATA_pdp_01", tk.ID)
	assert.Equal(t, audit.CategoryDataQuality, tk.Category)
	assert.Equal(t, []string{in.Evidence[0].ID}, tk.EvidenceRefs)
}

func TestSynthesizeInsufficientDataWithoutEvidence(t *testing.T) {
	t.Parallel()
	in := input(audit.FactRecord{})
	in.Evidence = nil
	out := newEngine().Synthesize(context.Background(), in)
	assert.Equal(t, audit.SourceInsufficientData, out.Source)
	assert.Empty(t, out.Tickets)
	assert.NotNil(t, out.Tickets)
}

func TestSynthesizeInsufficientEvidencePolicy(t *testing.T) {
	t.Parallel()
	in := input(brokenFacts())
	in.Evidence = []audit.Evidence{in.Evidence[1]}
	in.Completeness = audit.CompletenessInsufficient

	allowed := newEngine().Synthesize(context.Background(), in)
	assert.Equal(t, audit.SourceRules, allowed.Source)
	assert.NotEmpty(t, allowed.Tickets)

	cfg := DefaultConfig()
	cfg.AllowInsufficientEvidence = false
	skipped := NewEngine(cfg, zap.NewNop()).Synthesize(context.Background(), in)
	assert.Equal(t, audit.SourceSkipped, skipped.Source)
	assert.Empty(t, skipped.Tickets)
	require.ErrorIs(t, skipped.Err, ErrInsufficientEvidence)
}

func assertReferentialIntegrity(t *testing.T, out Output) {
	t.Helper()
	index := audit.EvidenceIndex(out.Evidence)
	for _, tk := range out.Tickets {
		require.NotEmpty(t, tk.EvidenceRefs, tk.ID)
		for _, ref := range tk.EvidenceRefs {
			_, ok := index[ref]
			require.True(t, ok, "ticket %s cites unknown evidence %s", tk.ID, ref)
		}
		require.Regexp(t, audit.TicketIDPattern, tk.ID)
	}
}
