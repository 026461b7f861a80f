package climate

import (
	"time"

	"github.com/google/uuid"
)

// Transition records a committed state change.
type Transition struct {
	ID     string    `json:"id"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason Reason    `json:"reason"`
	At     time.Time `json:"at"`
}

// history is a fixed-size ring of the most recent transitions.
type history struct {
	entries []Transition
	next    int
	full    bool
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{entries: make([]Transition, size)}
}

func (h *history) add(from, to State, reason Reason, at time.Time) Transition {
	t := Transition{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		Reason: reason,
		At:     at,
	}

	h.entries[h.next] = t
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}

	return t
}

// list returns the transitions oldest first.
func (h *history) list() []Transition {
	if !h.full {
		return append([]Transition(nil), h.entries[:h.next]...)
	}

	out := make([]Transition, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}
