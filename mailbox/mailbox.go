// Package mailbox implements the three event-mailbox disciplines named in
// spec.md §3/§4.3 (component C3): Bitmap, UCQ (unbounded concurrent queue)
// and CEQ (coalescing event queue).
//
// All three satisfy the same correctness invariant: once Post returns, a
// later ExtractOne will observe some manifestation of that event before
// the mailbox reports empty, provided no intervening consumer extracts it
// first.
package mailbox

import "github.com/akaros-project/mcp/eventmsg"

// Kind selects a mailbox discipline.
type Kind int

const (
	KindBitmap Kind = iota
	KindUCQ
	KindCEQ
)

// Mailbox is the common consumer-facing surface of all three disciplines.
type Mailbox interface {
	// Post deposits msg. Never blocks, and (per the shared-resource policy
	// in spec.md §5) never fails for lack of memory in the Bitmap/CEQ
	// disciplines; UCQ grows to accommodate arbitrarily many posts.
	Post(msg eventmsg.Message)

	// ExtractOne removes and returns one manifestation of a posted event,
	// or reports false if the mailbox is empty.
	ExtractOne() (eventmsg.Message, bool)

	// IsEmpty reports whether the mailbox currently holds nothing to
	// extract. May race with concurrent Post/ExtractOne callers; a false
	// answer is always safe to act on, a true answer is a snapshot.
	IsEmpty() bool
}

// New constructs a mailbox of the given discipline. nrEvents is only used
// by KindCEQ, and bounds the dense ev_type-indexed array.
func New(kind Kind, nrEvents int) Mailbox {
	switch kind {
	case KindUCQ:
		return NewUCQ()
	case KindCEQ:
		return NewCEQ(nrEvents, CeqOr)
	default:
		return NewBitmap()
	}
}
