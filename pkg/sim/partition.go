package sim

// Segment describes the contiguous slice of road positions owned by one rank.
type Segment struct {
	Start  int
	Length int
}

// SegmentFor computes the road slice owned by rank. The remainder of
// roadLength/size goes to the lowest ranks, so segment sizes differ by at
// most one cell. Every rank must arrive at the identical partition, the
// handoff routing depends on it.
func SegmentFor(rank, size, roadLength int) Segment {
	segSize := roadLength / size
	remainder := roadLength % size
	start := rank*segSize + min(rank, remainder)
	length := segSize
	if rank < remainder {
		length++
	}
	return Segment{Start: start, Length: length}
}
