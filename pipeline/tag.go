package pipeline

import (
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
)

// maxTagLength is the spec §6 bound on tag length ("alphabetic prefix +
// zero-padded decimal, length <= 16 bytes").
const maxTagLength = 16

// TagGenerator produces strictly increasing, unique tags for one
// connection's lifetime: a fixed alphabetic prefix followed by a
// zero-padded monotonic counter. Safe for concurrent use, though in
// practice only the pipeline's single Dispatch-at-a-time discipline
// calls it.
type TagGenerator struct {
	prefix string
	width  int

	mu      sync.Mutex
	counter uint64
	wrapped bool
}

// NewTagGenerator returns a generator using prefix (e.g. "A"). width is
// the minimum zero-padded digit count for the counter (3 gives A001,
// A002, ...); the counter keeps growing past that width, so A999 is
// followed by A1000.
func NewTagGenerator(prefix string, width int) *TagGenerator {
	return &TagGenerator{prefix: prefix, width: width}
}

// Next returns the next tag. Once a tag would exceed maxTagLength bytes,
// that call and every subsequent call return an error: tag wraparound
// is a fatal condition for the connection (spec §4.3).
func (g *TagGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wrapped {
		return "", eris.New("pipeline: tag counter exhausted")
	}
	g.counter++
	tag := fmt.Sprintf("%s%0*d", g.prefix, g.width, g.counter)
	if len(tag) > maxTagLength {
		g.wrapped = true
		g.counter--
		return "", eris.Wrapf(eris.New("tag too long"), "pipeline: generated tag %q exceeds %d bytes", tag, maxTagLength)
	}
	return tag, nil
}
