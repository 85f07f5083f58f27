package ledger

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// RandomSource supplies the randomness behind generated identifiers.
// Injecting it lets tests script exact sequences.
type RandomSource interface {
	Intn(n int) int
}

// globalRand draws from the process-global math/rand source, which is
// safe for concurrent use.
type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

const (
	suffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength  = 8
)

// Generator produces account numbers and transaction ids. Both have low
// collision probability rather than global uniqueness; callers re-check
// against the store and regenerate on collision.
type Generator struct {
	rand RandomSource
	now  func() time.Time
}

// NewGenerator returns a Generator backed by the shared random source
// and the wall clock.
func NewGenerator() *Generator {
	return NewGeneratorWith(globalRand{}, time.Now)
}

// NewGeneratorWith builds a Generator with an explicit random source and
// clock.
func NewGeneratorWith(src RandomSource, now func() time.Time) *Generator {
	return &Generator{rand: src, now: now}
}

// AccountNumber derives a prefix from the first whitespace-delimited
// token of the trimmed, upper-cased holder name and appends an opaque
// 8-character alphanumeric suffix, e.g. "ALICE-9K3TQ0ZP".
func (g *Generator) AccountNumber(holderName string) string {
	prefix := strings.ToUpper(strings.TrimSpace(holderName))
	if fields := strings.Fields(prefix); len(fields) > 0 {
		prefix = fields[0]
	}
	return prefix + "-" + g.suffix(suffixLength)
}

// TransactionID composes the current date with a zero-padded random
// 3-digit suffix, e.g. "TXN-20260830-042". The format caps distinct ids
// at 1000 per day, so an insert failure on the id must be handled by
// regenerating.
func (g *Generator) TransactionID() string {
	return fmt.Sprintf("TXN-%s-%03d", g.now().Format("20060102"), g.rand.Intn(1000))
}

func (g *Generator) suffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(suffixCharset[g.rand.Intn(len(suffixCharset))])
	}
	return b.String()
}
