package sim

import "fmt"

// Lane holds the occupancy index for one lane of a segment: a mapping from
// cell position to the vehicle sitting there. Lane numbers are identical on
// every segment, a vehicle keeps its lane across a handoff.
type Lane struct {
	number int
	cells  map[int]*Vehicle
}

func NewLane(number int) *Lane {
	return &Lane{number: number, cells: make(map[int]*Vehicle)}
}

func (l *Lane) Number() int { return l.number }

func (l *Lane) IsFree(position int) bool {
	_, occupied := l.cells[position]
	return !occupied
}

func (l *Lane) VehicleAt(position int) *Vehicle {
	return l.cells[position]
}

// AddVehicle inserts v at position. At most one vehicle may occupy a cell.
func (l *Lane) AddVehicle(position int, v *Vehicle) error {
	if other, occupied := l.cells[position]; occupied {
		return fmt.Errorf("lane %d cell %d already occupied by vehicle %d",
			l.number, position, other.ID())
	}
	l.cells[position] = v
	return nil
}

func (l *Lane) RemoveVehicle(position int) {
	delete(l.cells, position)
}

// GapAhead returns the number of free cells strictly ahead of position
// within the look window. If no vehicle is found the window itself is
// returned, a gap of look means "unbounded".
func (l *Lane) GapAhead(position, look int) int {
	for d := 1; d <= look; d++ {
		if !l.IsFree(position + d) {
			return d - 1
		}
	}
	return look
}

// GapBehind is the backward counterpart of GapAhead.
func (l *Lane) GapBehind(position, look int) int {
	for d := 1; d <= look; d++ {
		if !l.IsFree(position - d) {
			return d - 1
		}
	}
	return look
}

func (l *Lane) VehicleCount() int { return len(l.cells) }
