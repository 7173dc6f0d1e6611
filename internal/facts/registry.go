package facts

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Signature categories with dedicated handling.
const (
	categoryPlatform = "platform"
)

//go:embed registry/signatures.yaml
var defaultRegistryYAML []byte

// Signature is one detectable technology.
type Signature struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// Keywords are the phrase tables used by text classifiers.
type Keywords struct {
	CTA         []string `yaml:"cta"`
	Shipping    []string `yaml:"shipping"`
	Returns     []string `yaml:"returns"`
	SocialProof []string `yaml:"social_proof"`
	Trust       []string `yaml:"trust"`
	Reviews     []string `yaml:"reviews"`
	OutOfStock  []string `yaml:"out_of_stock"`
	Preorder    []string `yaml:"preorder"`
	InStock     []string `yaml:"in_stock"`
}

// Registry is a versioned detection table.
type Registry struct {
	Version    string      `yaml:"version"`
	Signatures []Signature `yaml:"signatures"`
	Keywords   Keywords    `yaml:"keywords"`
}

// LoadRegistry parses a YAML registry. Patterns and keywords are lowercased
// so matching can run against lowercased markup.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var reg Registry
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if strings.TrimSpace(reg.Version) == "" {
		return nil, fmt.Errorf("registry version is required")
	}
	for i := range reg.Signatures {
		sig := &reg.Signatures[i]
		if sig.Name == "" || len(sig.Patterns) == 0 {
			return nil, fmt.Errorf("signature %d needs a name and at least one pattern", i)
		}
		sig.Patterns = lowerAll(sig.Patterns)
	}
	k := &reg.Keywords
	for _, list := range []*[]string{
		&k.CTA, &k.Shipping, &k.Returns, &k.SocialProof, &k.Trust,
		&k.Reviews, &k.OutOfStock, &k.Preorder, &k.InStock,
	} {
		*list = lowerAll(*list)
	}
	return &reg, nil
}

// DefaultRegistry returns the embedded registry.
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(strings.NewReader(string(defaultRegistryYAML)))
	if err != nil {
		panic(fmt.Sprintf("embedded registry is invalid: %v", err))
	}
	return reg
}

// Match is a detected signature.
type Match struct {
	Name     string
	Category string
}

// Detect returns every signature whose pattern appears in lowered markup,
// deduplicated by name, in registry order.
func (r *Registry) Detect(lowerMarkup string) []Match {
	seen := make(map[string]bool)
	var out []Match
	for _, sig := range r.Signatures {
		if seen[sig.Name] {
			continue
		}
		for _, p := range sig.Patterns {
			if p != "" && strings.Contains(lowerMarkup, p) {
				seen[sig.Name] = true
				out = append(out, Match{Name: sig.Name, Category: sig.Category})
				break
			}
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
