package synthesis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

var nonSignal = regexp.MustCompile(`[^A-Z0-9]+`)

// ScopeFor returns the ticket scope used for single-page findings in mode.
func ScopeFor(mode audit.Mode) string {
	if mode == audit.ModeSolo || mode == "" {
		return audit.ScopePDP
	}
	return audit.ScopePageA
}

// TicketID formats a ticket id. Signals are upper-cased and reduced to
// [A-Z0-9_].
func TicketID(mode audit.Mode, category audit.Category, signal, scope string, index int) string {
	sig := strings.Trim(nonSignal.ReplaceAllString(strings.ToUpper(signal), "_"), "_")
	return fmt.Sprintf("T_%s_%s_SIG_%s_%s_%02d", mode, category, sig, scope, index)
}

// idAllocator hands out per-group indexes so repeated signals stay unique.
type idAllocator struct {
	counts map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{counts: make(map[string]int)}
}

func (a *idAllocator) next(mode audit.Mode, category audit.Category, signal, scope string) string {
	key := TicketID(mode, category, signal, scope, 0)
	a.counts[key]++
	return TicketID(mode, category, signal, scope, a.counts[key])
}
