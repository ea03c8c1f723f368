package sim

import (
	"math/rand"

	"github.com/trafficlab/roadsim/pkg/config"
)

// Road owns the ordered lanes of one segment plus the spawn policy. Spawning
// only happens on the segment that owns the logical origin of the road, the
// driver guards that.
type Road struct {
	lanes         []*Lane
	segmentLength int
	params        *config.Params
}

func NewRoad(params *config.Params, segmentLength int) *Road {
	lanes := make([]*Lane, params.LaneCount)
	for i := range lanes {
		lanes[i] = NewLane(i)
	}
	return &Road{lanes: lanes, segmentLength: segmentLength, params: params}
}

func (r *Road) Lane(idx int) *Lane     { return r.lanes[idx] }
func (r *Road) LaneCount() int         { return len(r.lanes) }
func (r *Road) SegmentLength() int     { return r.segmentLength }
func (r *Road) Params() *config.Params { return r.params }

func (r *Road) vehicleParams() VehicleParams {
	return VehicleParams{
		MaxSpeed:     r.params.MaxSpeed,
		ProbSlowDown: r.params.ProbSlowDown,
		ProbChange:   r.params.ProbChange,
	}
}

// AttemptSpawn tries to inject one vehicle per lane at the segment origin.
// A lane spawns with probSpawn and only if its entry cell is free, a full
// on-ramp simply drops that tick's attempt. Ids are taken from nextID which
// is owned by the head segment, so they are globally unique without
// coordination. Returns the newly created vehicles.
func (r *Road) AttemptSpawn(rng *rand.Rand, nextID *int) ([]*Vehicle, error) {
	var spawned []*Vehicle
	for idx, lane := range r.lanes {
		if rng.Float64() >= r.params.ProbSpawn {
			continue
		}
		if !lane.IsFree(0) {
			continue
		}
		v := NewVehicle(idx, *nextID, 0, r.vehicleParams())
		if err := lane.AddVehicle(0, v); err != nil {
			return nil, err
		}
		*nextID++
		spawned = append(spawned, v)
	}
	return spawned, nil
}

// TotalVehicles counts the vehicles currently bound into the lanes.
func (r *Road) TotalVehicles() int {
	total := 0
	for _, lane := range r.lanes {
		total += lane.VehicleCount()
	}
	return total
}
