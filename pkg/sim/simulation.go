package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"

	"github.com/trafficlab/roadsim/log"
	"github.com/trafficlab/roadsim/pkg/config"
	"github.com/trafficlab/roadsim/pkg/stats"
	"github.com/trafficlab/roadsim/pkg/transport"
	"github.com/trafficlab/roadsim/pkg/wire"
)

// Simulation drives one worker's segment: the per-tick CA update, the
// handoff exchange with the neighbor ranks, spawning on the head segment
// and the final statistics reduction on the head.
type Simulation struct {
	rank       int
	size       int
	params     *config.Params
	road       *Road
	vehicles   []*Vehicle
	nextID     int
	travelTime *stats.Accumulator
	rng        *rand.Rand
	tick       int
	spawned    int
	forwarded  int
	arrived    int
	exited     int
	l          *log.Logger
	metrics    *simMetrics
}

type Option func(*Simulation)

func WithRand(rng *rand.Rand) Option {
	return func(s *Simulation) {
		s.rng = rng
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Simulation) {
		s.l = l
	}
}

// NewSimulation creates the driver for one rank of a size-rank chain.
func NewSimulation(rank, size int, params *config.Params, opts ...Option) *Simulation {
	seg := SegmentFor(rank, size, params.RoadLength)
	ret := &Simulation{
		rank:       rank,
		size:       size,
		params:     params,
		road:       NewRoad(params, seg.Length),
		travelTime: &stats.Accumulator{},
		//nolint:gosec // simulation randomness, not crypto
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		l:   log.Default().Named("sim"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.metrics = newSimMetrics(rank)
	return ret
}

func (s *Simulation) Rank() int                { return s.rank }
func (s *Simulation) Road() *Road              { return s.road }
func (s *Simulation) Vehicles() []*Vehicle     { return s.vehicles }
func (s *Simulation) Spawned() int             { return s.spawned }
func (s *Simulation) Forwarded() int           { return s.forwarded }
func (s *Simulation) Arrived() int             { return s.arrived }
func (s *Simulation) Exited() int              { return s.exited }
func (s *Simulation) TravelTime() stats.Sample { return s.travelTime.Sample() }

// Run executes the configured number of ticks, synchronizes with the other
// ranks and, on the head, reduces the per-worker statistics to the global
// result. Non-head ranks return a result without combined statistics.
func (s *Simulation) Run(ctx context.Context, conn transport.Conn) (*Result, error) {
	begin := time.Now()
	for tick := 0; tick < s.params.MaxTicks; tick++ {
		s.tick = tick
		if err := s.step(ctx, conn); err != nil {
			return nil, fmt.Errorf("rank %d failed at tick %d: %w", s.rank, tick, err)
		}
	}
	if err := conn.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("rank %d: final barrier failed: %w", s.rank, err)
	}
	s.l.Info("local loop finished",
		log.Int("rank", s.rank),
		log.Int("spawned", s.spawned),
		log.Int("forwarded", s.forwarded),
		log.Int("arrived", s.arrived),
		log.Int("exited", s.exited),
		log.Int("inFlight", len(s.vehicles)))

	own := s.travelTime.Sample()
	ownRec := wire.StatRecord{Mean: own.Mean, Variance: own.Variance, Count: own.Count}
	if s.rank > 0 {
		if err := conn.SendStats(ctx, ownRec); err != nil {
			return nil, fmt.Errorf("rank %d: stats send failed: %w", s.rank, err)
		}
		return &Result{Elapsed: time.Since(begin), Ticks: s.params.MaxTicks}, nil
	}

	records, err := conn.GatherStats(ctx, ownRec)
	if err != nil {
		return nil, fmt.Errorf("stats gather failed: %w", err)
	}
	samples := lo.Map(records, func(r wire.StatRecord, _ int) stats.Sample {
		return stats.Sample{Mean: r.Mean, Variance: r.Variance, Count: r.Count}
	})
	return &Result{
		Elapsed:  time.Since(begin),
		Ticks:    s.params.MaxTicks,
		Combined: stats.Combine(samples),
		HasStats: true,
	}, nil
}

// step runs one tick: local CA updates, the handoff exchange and, on the
// head, removal bookkeeping plus spawn.
func (s *Simulation) step(ctx context.Context, conn transport.Conn) error {
	var outbound []wire.HandoffRecord
	var finished []*Vehicle
	var err error

	if s.rank == 0 {
		outbound, finished, err = s.updateHead()
	} else {
		outbound, finished, err = s.updateInterior(ctx, conn)
	}
	if err != nil {
		return err
	}

	if s.rank < s.size-1 {
		if err = conn.Send(ctx, outbound); err != nil {
			return fmt.Errorf("handoff send failed: %w", err)
		}
		s.forwarded += len(outbound)
		s.metrics.observeHandoff(len(outbound))
	} else {
		// the tail has no right neighbor, its finishers leave the road
		s.exited += len(finished)
	}

	if s.rank > 0 {
		// interiors already dropped their finishers during the update
		for _, v := range finished {
			s.recordExit(v.TicksOnSegment())
		}
		s.vehicles = removeFinished(s.vehicles, finished)
	} else {
		// head bookkeeping happens after the exchange, then spawn
		for _, v := range finished {
			s.recordExit(v.TicksOnSegment())
		}
		s.vehicles = removeFinished(s.vehicles, finished)
		spawnedNow, spawnErr := s.road.AttemptSpawn(s.rng, &s.nextID)
		if spawnErr != nil {
			return fmt.Errorf("spawn failed: %w", spawnErr)
		}
		s.vehicles = append(s.vehicles, spawnedNow...)
		s.spawned += len(spawnedNow)
	}
	s.metrics.observeTick(s.road.TotalVehicles())
	return nil
}

// updateHead runs the two phase loops of the head segment: lane switch
// decisions for all vehicles first, then the movement commit pass. Gaps are
// sensed again right before the move so that a vehicle switching lanes
// earlier in the pass can not be overrun on stale information.
func (s *Simulation) updateHead() ([]wire.HandoffRecord, []*Vehicle, error) {
	for _, v := range s.vehicles {
		v.UpdateGaps(s.road)
		if _, err := v.AttemptLaneChange(s.road, s.rng); err != nil {
			return nil, nil, err
		}
	}
	var outbound []wire.HandoffRecord
	var finished []*Vehicle
	for _, v := range s.vehicles {
		v.UpdateGaps(s.road)
		ticks, err := v.Advance(s.road, s.rng)
		if err != nil {
			return nil, nil, err
		}
		if ticks != 0 {
			finished = append(finished, v)
			outbound = append(outbound, s.handoffRecord(v, ticks))
		}
	}
	return outbound, finished, nil
}

// updateInterior first blocks on the left neighbor's batch, rebuilds the
// arriving vehicles into the local lanes and then runs the full three phase
// update over every local vehicle, freshly arrived ones included.
func (s *Simulation) updateInterior(
	ctx context.Context,
	conn transport.Conn,
) ([]wire.HandoffRecord, []*Vehicle, error) {
	batch, err := conn.Recv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("handoff receive failed: %w", err)
	}
	for i := range batch {
		v, rebuildErr := s.rebuildVehicle(&batch[i])
		if rebuildErr != nil {
			return nil, nil, rebuildErr
		}
		s.vehicles = append(s.vehicles, v)
	}
	s.arrived += len(batch)

	var outbound []wire.HandoffRecord
	var finished []*Vehicle
	for _, v := range s.vehicles {
		v.UpdateGaps(s.road)
		if _, changeErr := v.AttemptLaneChange(s.road, s.rng); changeErr != nil {
			return nil, nil, changeErr
		}
		v.UpdateGaps(s.road)
		ticks, moveErr := v.Advance(s.road, s.rng)
		if moveErr != nil {
			return nil, nil, moveErr
		}
		if ticks != 0 {
			finished = append(finished, v)
			outbound = append(outbound, s.handoffRecord(v, ticks))
		}
	}
	return outbound, finished, nil
}

// rebuildVehicle turns an inbound record into a locally owned vehicle. The
// entry position is the overshoot past the previous segment's edge; if that
// cell is already taken the vehicle backs off to the nearest free cell
// behind it. The local segment transit clock starts at zero.
func (s *Simulation) rebuildVehicle(rec *wire.HandoffRecord) (*Vehicle, error) {
	laneIdx := int(rec.Lane)
	if laneIdx < 0 || laneIdx >= s.road.LaneCount() {
		return nil, fmt.Errorf("inbound record for vehicle %d names unknown lane %d",
			rec.ID, rec.Lane)
	}
	pos := int(rec.Position)
	if pos >= s.road.SegmentLength() {
		pos = s.road.SegmentLength() - 1
	}
	lane := s.road.Lane(laneIdx)
	for pos > 0 && !lane.IsFree(pos) {
		pos--
	}
	if !lane.IsFree(pos) {
		return nil, fmt.Errorf("no free entry cell for vehicle %d on lane %d", rec.ID, laneIdx)
	}
	v := NewVehicle(laneIdx, int(rec.ID), pos, s.road.vehicleParams())
	v.SetSpeed(int(rec.Speed))
	if err := lane.AddVehicle(pos, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Simulation) handoffRecord(v *Vehicle, ticks int) wire.HandoffRecord {
	return wire.HandoffRecord{
		Lane:           int32(v.LaneIndex()),
		ID:             int32(v.ID()),
		Position:       int32(v.Overshoot(s.road)),
		Speed:          int32(v.Speed()),
		TicksOnSegment: int32(ticks),
	}
}

func (s *Simulation) recordExit(ticksOnSegment int) {
	if s.tick+1 > s.params.WarmupTicks {
		s.travelTime.Add(float64(ticksOnSegment))
	}
}

func removeFinished(vehicles, finished []*Vehicle) []*Vehicle {
	if len(finished) == 0 {
		return vehicles
	}
	gone := make(map[*Vehicle]struct{}, len(finished))
	for _, v := range finished {
		gone[v] = struct{}{}
	}
	return lo.Filter(vehicles, func(v *Vehicle, _ int) bool {
		_, isGone := gone[v]
		return !isGone
	})
}
