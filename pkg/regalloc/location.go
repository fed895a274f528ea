package regalloc

import (
	"fmt"
	"math"
)

// Location orders events along the stream. Each program node takes a pair of
// consecutive locations: the first holds its uses, internal temporaries and
// all but the final definition; the second holds the final definition.
type Location uint32

// MaxLocation is the "never" sentinel used for absent next uses.
const MaxLocation Location = math.MaxUint32

func (l Location) String() string {
	if l == MaxLocation {
		return "max"
	}
	return fmt.Sprintf("%d", l)
}
