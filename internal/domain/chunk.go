package domain

// Chunk is an ordered, non-empty group of entries that maps to exactly one
// envelope. SubGroups partitions Entries into half-open [start, end) runs
// used for modes that batch several recipients into one directive.
type Chunk struct {
	Index     int
	Entries   []Entry
	SubGroups [][2]int
}

// Size returns the number of entries in the chunk.
func (c Chunk) Size() int {
	return len(c.Entries)
}

// Group returns the entries of sub-group i.
func (c Chunk) Group(i int) []Entry {
	g := c.SubGroups[i]
	return c.Entries[g[0]:g[1]]
}

// SkipReason explains why an entry was not submitted.
type SkipReason string

const (
	SkipNonPositive          SkipReason = "non-positive-amount"
	SkipUnsupportedDirection SkipReason = "unsupported-direction"
)

// Skipped is an entry filtered out before chunking.
type Skipped struct {
	Entry  Entry      `json:"entry"`
	Reason SkipReason `json:"reason"`
}
