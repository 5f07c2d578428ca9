package loadbalancer

import (
	rand "math/rand/v2"
	"time"

	"github.com/zeebo/xxh3"
)

// picker draws uniformly random tie-breaks among candidate partition ids.
type picker struct {
	rng *rand.Rand
}

// newPicker returns a picker seeded from the owner identifier and the
// instance's start time, so that peers launched at the same instant do not
// make colliding tie-break choices during Phase F.
func newPicker(ownerID string, startedAt time.Time) *picker {
	h := xxh3.HashString128(ownerID + startedAt.Format(time.RFC3339Nano))

	return &picker{rng: rand.New(rand.NewPCG(h.Hi, h.Lo))}
}

// pick returns a uniformly random element of ids. Callers must ensure ids
// is non-empty.
func (p *picker) pick(ids []string) string {
	return ids[p.rng.IntN(len(ids))]
}
