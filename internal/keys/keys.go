package keys

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Tier identifies one link in the key chain.
type Tier string

// Key tiers, upstream first.
const (
	TierProduct  Tier = "product"
	TierSnapshot Tier = "snapshot"
	TierRun      Tier = "run"
	TierAudit    Tier = "audit"
	TierRender   Tier = "render"
)

// hexLen is the number of digest characters kept in a key.
const hexLen = 16

var prefixes = map[Tier]string{
	TierProduct:  "prod",
	TierSnapshot: "snap",
	TierRun:      "run",
	TierAudit:    "audit",
	TierRender:   "render",
}

var keyPattern = regexp.MustCompile(`^([a-z]+)_([0-9a-f]+)$`)

// Versions are the explicit stamps folded into each tier. Bumping any stamp
// changes that tier's key and every key downstream of it.
type Versions struct {
	Normalize     string `mapstructure:"normalize" json:"normalize"`
	Engine        string `mapstructure:"engine" json:"engine"`
	Detectors     string `mapstructure:"detectors" json:"detectors"`
	Scoring       string `mapstructure:"scoring" json:"scoring"`
	ReportOutline string `mapstructure:"report_outline" json:"report_outline"`
	Render        string `mapstructure:"render" json:"render"`
	CSVExport     string `mapstructure:"csv_export" json:"csv_export"`
}

// DefaultVersions returns the stamps shipped with this build.
func DefaultVersions() Versions {
	return Versions{
		Normalize:     "n1",
		Engine:        "e1",
		Detectors:     "d1",
		Scoring:       "s1",
		ReportOutline: "o1",
		Render:        "r1",
		CSVExport:     "c1",
	}
}

// Canonicalize encodes v as JSON with object keys sorted at every depth.
// Array order is preserved.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode canonical: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Derive hashes the canonical form of input into a tier key.
func Derive(tier Tier, input any) (string, error) {
	prefix, ok := prefixes[tier]
	if !ok {
		return "", fmt.Errorf("unknown key tier %q", tier)
	}
	canonical, err := Canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("derive %s key: %w", tier, err)
	}
	h := sha256.New()
	h.Write([]byte(tier))
	h.Write([]byte{'\n'})
	h.Write(canonical)
	sum := hex.EncodeToString(h.Sum(nil))
	return prefix + "_" + sum[:hexLen], nil
}

// ChainInput is the semantic input for a full key chain.
type ChainInput struct {
	Mode       audit.Mode
	URLs       []string
	Locale     string
	Viewports  []audit.Viewport
	CopyReady  bool
	WhiteLabel bool
}

// ProductInput is the canonical product tier input. Locale is excluded so
// every locale of the same path maps to one product.
type ProductInput struct {
	Mode             audit.Mode `json:"mode"`
	NormalizedURLs   []string   `json:"normalized_urls"`
	NormalizeVersion string     `json:"normalize_version"`
}

// SnapshotInput is the canonical snapshot tier input.
type SnapshotInput struct {
	ProductKey    string           `json:"product_key"`
	Locale        string           `json:"locale"`
	Viewports     []audit.Viewport `json:"viewports"`
	EngineVersion string           `json:"engine_version"`
}

// RunInput is the canonical run tier input.
type RunInput struct {
	SnapshotKey      string     `json:"snapshot_key"`
	DetectorsVersion string     `json:"detectors_version"`
	ScoringVersion   string     `json:"scoring_version"`
	Mode             audit.Mode `json:"mode"`
}

// AuditInput is the canonical audit tier input.
type AuditInput struct {
	RunKey               string `json:"run_key"`
	ReportOutlineVersion string `json:"report_outline_version"`
	CopyReady            bool   `json:"copy_ready"`
	WhiteLabel           bool   `json:"white_label"`
}

// RenderInput is the canonical render tier input.
type RenderInput struct {
	AuditKey         string `json:"audit_key"`
	RenderVersion    string `json:"render_version"`
	CSVExportVersion string `json:"csv_export_version"`
}

// NewChain derives all five keys for in.
func NewChain(in ChainInput, v Versions) (audit.Keys, error) {
	urls := make([]string, len(in.URLs))
	for i, u := range in.URLs {
		urls[i] = Normalize(u)
	}
	viewports := in.Viewports
	if viewports == nil {
		viewports = []audit.Viewport{}
	}

	var keys audit.Keys
	var err error
	if keys.Product, err = Derive(TierProduct, ProductInput{
		Mode:             in.Mode,
		NormalizedURLs:   urls,
		NormalizeVersion: v.Normalize,
	}); err != nil {
		return audit.Keys{}, err
	}
	if keys.Snapshot, err = Derive(TierSnapshot, SnapshotInput{
		ProductKey:    keys.Product,
		Locale:        strings.TrimSpace(in.Locale),
		Viewports:     viewports,
		EngineVersion: v.Engine,
	}); err != nil {
		return audit.Keys{}, err
	}
	if keys.Run, err = Derive(TierRun, RunInput{
		SnapshotKey:      keys.Snapshot,
		DetectorsVersion: v.Detectors,
		ScoringVersion:   v.Scoring,
		Mode:             in.Mode,
	}); err != nil {
		return audit.Keys{}, err
	}
	if keys.Audit, err = Derive(TierAudit, AuditInput{
		RunKey:               keys.Run,
		ReportOutlineVersion: v.ReportOutline,
		CopyReady:            in.CopyReady,
		WhiteLabel:           in.WhiteLabel,
	}); err != nil {
		return audit.Keys{}, err
	}
	if keys.Render, err = Derive(TierRender, RenderInput{
		AuditKey:         keys.Audit,
		RenderVersion:    v.Render,
		CSVExportVersion: v.CSVExport,
	}); err != nil {
		return audit.Keys{}, err
	}
	return keys, nil
}

// Analysis describes the shape of a key. It is diagnostic only and must not
// be used to decide whether cached data is trustworthy.
type Analysis struct {
	Tier   Tier   `json:"tier,omitempty"`
	Prefix string `json:"prefix"`
	Hash   string `json:"hash"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Analyze inspects a key string.
func Analyze(key string) Analysis {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return Analysis{Reason: "malformed key"}
	}
	a := Analysis{Prefix: m[1], Hash: m[2]}
	for tier, prefix := range prefixes {
		if prefix == m[1] {
			a.Tier = tier
		}
	}
	switch {
	case a.Tier == "":
		a.Reason = "unknown prefix"
	case len(a.Hash) != hexLen:
		a.Reason = fmt.Sprintf("expected %d hex chars, got %d", hexLen, len(a.Hash))
	default:
		a.Valid = true
	}
	return a
}
