package sim

import (
	"fmt"
	"math/rand"
)

// Vehicle is one agent of the cellular automaton. Movement is decided in
// three phases per tick: gap sensing, an optional probabilistic lane change
// and the speed/position update. The vehicle holds an index into the owning
// road's lane collection rather than a lane pointer, so it can be rebuilt on
// a different segment without pointer plumbing.
type Vehicle struct {
	id               int
	laneIdx          int
	position         int
	speed            int
	maxSpeed         int
	gapForward       int
	gapOtherForward  int
	gapOtherBackward int
	lookForward      int
	lookOtherForward int
	lookOtherBack    int
	probSlowDown     float64
	probChange       float64
	ticksOnSegment   int
	newPosition      int
}

// NewVehicle creates a vehicle on lane laneIdx at position. The caller is
// responsible for binding it into the lane's occupancy index.
func NewVehicle(laneIdx, id, position int, p VehicleParams) *Vehicle {
	return &Vehicle{
		id:               id,
		laneIdx:          laneIdx,
		position:         position,
		newPosition:      position,
		maxSpeed:         p.MaxSpeed,
		lookForward:      p.MaxSpeed,
		lookOtherForward: p.MaxSpeed,
		lookOtherBack:    p.MaxSpeed,
		probSlowDown:     p.ProbSlowDown,
		probChange:       p.ProbChange,
	}
}

// VehicleParams is the per-vehicle slice of the simulation parameters.
type VehicleParams struct {
	MaxSpeed     int
	ProbSlowDown float64
	ProbChange   float64
}

func (v *Vehicle) ID() int             { return v.id }
func (v *Vehicle) LaneIndex() int      { return v.laneIdx }
func (v *Vehicle) Position() int       { return v.position }
func (v *Vehicle) Speed() int          { return v.speed }
func (v *Vehicle) TicksOnSegment() int { return v.ticksOnSegment }

func (v *Vehicle) SetSpeed(speed int) { v.speed = speed }

// adjacentLane picks the candidate lane for a change: the right neighbor if
// one exists, the left one otherwise. Returns -1 on a single lane road.
func (v *Vehicle) adjacentLane(road *Road) int {
	if v.laneIdx+1 < road.LaneCount() {
		return v.laneIdx + 1
	}
	if v.laneIdx > 0 {
		return v.laneIdx - 1
	}
	return -1
}

// UpdateGaps senses the spatial context of the vehicle: the forward gap in
// its own lane plus the forward and backward gap in the adjacent lane, each
// bounded by its look window.
func (v *Vehicle) UpdateGaps(road *Road) {
	v.gapForward = road.Lane(v.laneIdx).GapAhead(v.position, v.lookForward)
	if other := v.adjacentLane(road); other >= 0 {
		v.gapOtherForward = road.Lane(other).GapAhead(v.position, v.lookOtherForward)
		v.gapOtherBackward = road.Lane(other).GapBehind(v.position, v.lookOtherBack)
	} else {
		v.gapOtherForward = 0
		v.gapOtherBackward = 0
	}
}

// AttemptLaneChange moves the vehicle to the adjacent lane when the change
// is both attractive and safe, damped by probChange. Attractive means the
// adjacent forward gap strictly beats the own one; safe means no follower
// inside the backward look window and a free target cell. Gaps are re-sensed
// after a change since the spatial context changed.
func (v *Vehicle) AttemptLaneChange(road *Road, rng *rand.Rand) (bool, error) {
	other := v.adjacentLane(road)
	if other < 0 {
		return false, nil
	}
	if v.gapOtherForward <= v.gapForward {
		return false, nil
	}
	if v.gapOtherBackward < v.lookOtherBack {
		return false, nil
	}
	if !road.Lane(other).IsFree(v.position) {
		return false, nil
	}
	if rng.Float64() >= v.probChange {
		return false, nil
	}
	road.Lane(v.laneIdx).RemoveVehicle(v.position)
	if err := road.Lane(other).AddVehicle(v.position, v); err != nil {
		return false, fmt.Errorf("lane change of vehicle %d failed: %w", v.id, err)
	}
	v.laneIdx = other
	v.UpdateGaps(road)
	return true, nil
}

// Advance performs the car following step: accelerate, brake to the sensed
// forward gap, randomly slow down, then commit the new position. The
// post-update speed never exceeds the pre-update forward gap, which keeps
// the lane collision free. Returns the accumulated ticks on this segment
// when the new position reaches the segment's right edge, zero otherwise.
func (v *Vehicle) Advance(road *Road, rng *rand.Rand) (int, error) {
	v.ticksOnSegment++
	if v.speed < v.maxSpeed {
		v.speed++
	}
	if v.speed > v.gapForward {
		v.speed = v.gapForward
	}
	if v.speed > 0 && rng.Float64() < v.probSlowDown {
		v.speed--
	}
	v.newPosition = v.position + v.speed

	lane := road.Lane(v.laneIdx)
	if v.newPosition != v.position {
		lane.RemoveVehicle(v.position)
		if v.newPosition < road.SegmentLength() {
			if err := lane.AddVehicle(v.newPosition, v); err != nil {
				return 0, fmt.Errorf("move of vehicle %d failed: %w", v.id, err)
			}
		}
	}
	v.position = v.newPosition

	if v.newPosition >= road.SegmentLength() {
		return v.ticksOnSegment, nil
	}
	return 0, nil
}

// Overshoot is the distance the vehicle travelled past the segment edge,
// which becomes its entry position on the next segment.
func (v *Vehicle) Overshoot(road *Road) int {
	return v.newPosition - road.SegmentLength()
}
