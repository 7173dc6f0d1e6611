package facts

// Strategy is one step of a per-field fallback cascade. Find reports false
// when the strategy found nothing usable.
type Strategy[T any] struct {
	Name string
	Find func(d *Document) (T, bool)
}

// Strategy names recorded in provenance.
const (
	SourceStructuredData = "structured_data"
	SourceCommerceForm   = "commerce_form"
	SourceSelectors      = "selectors"
	SourceMeta           = "meta"
	SourceTextScan       = "text_scan"
)

// runCascade returns the first strategy result that is found. Results are
// never merged across strategies.
func runCascade[T any](d *Document, strategies []Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if s.Find == nil {
			continue
		}
		if v, ok := s.Find(d); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}
