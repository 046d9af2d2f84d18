// Package correlation generates the client-side tokens the backend uses to
// recognise a resubmission of the same logical order.
package correlation

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every generated correlation ID.
const Prefix = "req-"

// Generator produces correlation IDs made of a millisecond time prefix and a
// random suffix. The zero value is not usable; call NewGenerator.
type Generator struct {
	now func() time.Time
}

// NewGenerator returns a Generator backed by the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate returns a new correlation ID of the form
// req-<unix ms, base36>-<12 hex chars>.
func (g *Generator) Generate() string {
	ms := g.now().UnixMilli()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return Prefix + strconv.FormatInt(ms, 36) + "-" + suffix
}
