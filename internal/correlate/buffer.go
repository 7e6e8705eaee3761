package correlate

import "strings"

// Intent is one buffered audio playback awaiting a matching posture outcome.
// Matched flips false to true at most once.
type Intent struct {
	Timestamp float64
	Text      string
	FileRef   string
	Matched   bool
}

// Buffer is a bounded FIFO of recent intents in arrival order; adding past
// capacity evicts the oldest entry.
type Buffer struct {
	capacity int
	items    []Intent
}

// NewBuffer creates a buffer holding at most capacity intents.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{capacity: capacity}
}

// Add appends an intent, evicting the oldest when full.
func (b *Buffer) Add(in Intent) {
	if len(b.items) == b.capacity {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, in)
}

// Len reports the number of buffered intents.
func (b *Buffer) Len() int { return len(b.items) }

// Match scans newest-first for an unmatched intent that plausibly caused a
// transition to target at poseTs: issued no later than poseTs, no more than
// window seconds before it, and naming the target pose (case-insensitive
// substring of the text or file reference). The first hit is marked matched
// and returned; ties prefer the most recent applicable intent.
func (b *Buffer) Match(target string, poseTs, window float64) (Intent, bool) {
	if target == "" {
		return Intent{}, false
	}
	needle := strings.ToLower(target)

	for i := len(b.items) - 1; i >= 0; i-- {
		in := &b.items[i]
		if in.Matched {
			continue
		}
		if in.Timestamp > poseTs {
			// A command issued after the posture change cannot have caused it.
			continue
		}
		if poseTs-in.Timestamp > window {
			continue
		}
		if strings.Contains(strings.ToLower(in.Text), needle) ||
			strings.Contains(strings.ToLower(in.FileRef), needle) {
			in.Matched = true
			return *in, true
		}
	}
	return Intent{}, false
}
