package quiz

import (
	"fmt"
	"math"
	"sort"
)

// BreakSet holds sentence ids that have a chunk boundary right after them.
type BreakSet struct {
	ids map[int]struct{}
}

func NewBreakSet(ids ...int) BreakSet {
	b := BreakSet{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
	return b
}

func (b BreakSet) Has(id int) bool {
	_, ok := b.ids[id]
	return ok
}

func (b *BreakSet) Add(id int) {
	if b.ids == nil {
		b.ids = make(map[int]struct{})
	}
	b.ids[id] = struct{}{}
}

func (b *BreakSet) Remove(id int) {
	delete(b.ids, id)
}

// Toggle flips membership of id and reports whether it is now a break.
func (b *BreakSet) Toggle(id int) bool {
	if b.Has(id) {
		b.Remove(id)
		return false
	}
	b.Add(id)
	return true
}

func (b BreakSet) Len() int {
	return len(b.ids)
}

// IDs returns the break ids in ascending order. The result is never nil.
func (b BreakSet) IDs() []int {
	out := make([]int, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (b BreakSet) Clone() BreakSet {
	return NewBreakSet(b.IDs()...)
}

func (b BreakSet) Equal(other BreakSet) bool {
	if b.Len() != other.Len() {
		return false
	}
	for id := range b.ids {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (b BreakSet) String() string {
	return fmt.Sprint(b.IDs())
}

// Chunk is a contiguous run of sentence ids. Name and Reasoning are only set on
// reference and option chunks.
type Chunk struct {
	SentenceIDs []int  `json:"sentenceIds" yaml:"sentences"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Reasoning   string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Segmentation is an ordered partition of a passage into chunks.
type Segmentation []Chunk

// DeriveSegmentation splits the passage after every sentence whose id is in
// breaks. A break on the final sentence has nothing after it and is ignored.
func DeriveSegmentation(passage Passage, breaks BreakSet) Segmentation {
	var (
		out     Segmentation
		current []int
	)
	for _, s := range passage {
		current = append(current, s.ID)
		if breaks.Has(s.ID) {
			out = append(out, Chunk{SentenceIDs: current})
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, Chunk{SentenceIDs: current})
	}
	return out
}

// ScoreBoundaries returns the percentage of the passageLength-1 boundary
// positions on which user and reference agree (both break or both not).
// Positions are scored independently; a passage of one sentence or less has no
// positions and scores 100.
func ScoreBoundaries(user, reference BreakSet, passageLength int) int {
	positions := passageLength - 1
	if positions <= 0 {
		return 100
	}
	agree := 0
	for id := 0; id < positions; id++ {
		if user.Has(id) == reference.Has(id) {
			agree++
		}
	}
	return int(math.Floor(float64(agree)*100/float64(positions) + 0.5))
}

// Breaks returns the boundary set that derives this segmentation.
func (s Segmentation) Breaks() BreakSet {
	b := NewBreakSet()
	for i, c := range s {
		if i == len(s)-1 || len(c.SentenceIDs) == 0 {
			continue
		}
		b.Add(c.SentenceIDs[len(c.SentenceIDs)-1])
	}
	return b
}

// ChunkOf returns the 0-based index of the chunk holding sentence id, or -1.
func (s Segmentation) ChunkOf(id int) int {
	for i, c := range s {
		for _, sid := range c.SentenceIDs {
			if sid == id {
				return i
			}
		}
	}
	return -1
}

// Validate checks that s covers the passage exactly once, in order.
func (s Segmentation) Validate(passage Passage) error {
	next := 0
	for i, c := range s {
		if len(c.SentenceIDs) == 0 {
			return fmt.Errorf("%w: chunk %d is empty", ErrInvalidContent, i+1)
		}
		for _, id := range c.SentenceIDs {
			if next >= len(passage) {
				return fmt.Errorf("%w: chunk %d runs past the last sentence (id %d)", ErrInvalidContent, i+1, id)
			}
			if id != passage[next].ID {
				return fmt.Errorf("%w: chunk %d has sentence %d where %d was expected", ErrInvalidContent, i+1, id, passage[next].ID)
			}
			next++
		}
	}
	if next != len(passage) {
		return fmt.Errorf("%w: segmentation leaves sentences %d-%d unassigned", ErrInvalidContent, next, len(passage)-1)
	}
	return nil
}

// Annotate copies names and reasoning from labelled onto s chunk by chunk.
// Both must describe the same groups; extra labels are ignored.
func (s Segmentation) Annotate(labelled []Chunk) Segmentation {
	out := make(Segmentation, len(s))
	for i, c := range s {
		c.SentenceIDs = append([]int(nil), c.SentenceIDs...)
		if i < len(labelled) {
			c.Name = labelled[i].Name
			c.Reasoning = labelled[i].Reasoning
		}
		out[i] = c
	}
	return out
}
