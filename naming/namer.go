// Package naming hands out output identifiers for converted slides.
//
// Identifier uniqueness is what keeps concurrent conversions from writing
// into each other's output: there is no lock on the slides directory, so a
// repeated id would overwrite a published pyramid. Ids have the form
// <prefix>_<millis>_<8 hex>. Within one process the millisecond part is
// strictly increasing; the random suffix covers restarts with a skewed clock
// and several processes sharing one output directory.
package naming

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SlideNamer struct {
	prefix string
	last   atomic.Int64
	now    func() time.Time
}

func NewSlideNamer(prefix string) *SlideNamer {
	if prefix == "" {
		prefix = "slide"
	}
	return &SlideNamer{prefix: prefix, now: time.Now}
}

// NextOutputID is safe for concurrent use.
func (n *SlideNamer) NextOutputID() string {
	stamp := n.nextStamp()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", n.prefix, stamp, suffix)
}

// nextStamp returns max(now, last+1) and records it.
func (n *SlideNamer) nextStamp() int64 {
	for {
		prev := n.last.Load()
		next := n.now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
