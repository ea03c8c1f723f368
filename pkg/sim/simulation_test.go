package sim

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlab/roadsim/pkg/config"
	"github.com/trafficlab/roadsim/pkg/transport"
	"github.com/trafficlab/roadsim/pkg/transport/inproc"
)

// A vehicle crossing the segment edge must produce exactly one handoff
// record in the same tick, carrying its lane, id, speed and a nonzero
// ticks-on-segment value.
func TestSimulation_HandoffRecord(t *testing.T) {
	params := testParams(func(p *config.Params) {
		p.RoadLength = 20 // two segments of 10
		p.MaxSpeed = 3
	})
	network, err := inproc.NewNetwork(2)
	require.NoError(t, err)
	head := NewSimulation(0, 2, params, WithRand(rand.New(rand.NewSource(10))))
	require.Equal(t, 10, head.Road().SegmentLength())

	v := placeVehicle(t, head.Road(), 0, 42, 8)
	v.SetSpeed(3)
	head.vehicles = append(head.vehicles, v)

	conn0, err := network.Conn(0)
	require.NoError(t, err)
	conn1, err := network.Conn(1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, head.step(ctx, conn0))

	batch, err := conn1.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	rec := batch[0]
	assert.EqualValues(t, 0, rec.Lane)
	assert.EqualValues(t, 42, rec.ID)
	assert.EqualValues(t, 3, rec.Speed)
	assert.NotZero(t, rec.TicksOnSegment)
	// speed 3 from position 8 overshoots the edge by one cell
	assert.EqualValues(t, 1, rec.Position)
	assert.Empty(t, head.vehicles, "finished vehicle must leave the head segment")
	assert.Equal(t, 1, head.Forwarded())
}

// checkOccupancy asserts that the lane index and the vehicle list agree:
// every vehicle sits in exactly the cell its lane maps it to, one vehicle
// per cell.
func checkOccupancy(t *testing.T, s *Simulation, tick int) {
	t.Helper()
	indexed := 0
	for laneIdx := 0; laneIdx < s.Road().LaneCount(); laneIdx++ {
		indexed += s.Road().Lane(laneIdx).VehicleCount()
	}
	if indexed != len(s.vehicles) {
		t.Fatalf("tick %d: %d vehicles indexed, %d tracked", tick, indexed, len(s.vehicles))
	}
	for _, v := range s.vehicles {
		got := s.Road().Lane(v.LaneIndex()).VehicleAt(v.Position())
		if got != v {
			t.Fatalf("tick %d: vehicle %d not at (%d,%d)",
				tick, v.ID(), v.LaneIndex(), v.Position())
		}
	}
}

// Dense stochastic traffic on the head segment never violates the
// occupancy invariant.
func TestSimulation_OccupancyInvariant(t *testing.T) {
	params := testParams(func(p *config.Params) {
		p.RoadLength = 60 // two segments of 30
		p.LaneCount = 2
		p.ProbSlowDown = 0.4
		p.ProbChange = 0.7
		p.ProbSpawn = 0.9
	})
	network, err := inproc.NewNetwork(2)
	require.NoError(t, err)
	conn0, err := network.Conn(0)
	require.NoError(t, err)
	conn1, err := network.Conn(1)
	require.NoError(t, err)

	head := NewSimulation(0, 2, params, WithRand(rand.New(rand.NewSource(11))))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// drain the link so the head never blocks
	go func() {
		for {
			if _, recvErr := conn1.Recv(ctx); recvErr != nil {
				return
			}
		}
	}()

	for tick := 0; tick < 200; tick++ {
		head.tick = tick
		require.NoError(t, head.step(ctx, conn0))
		checkOccupancy(t, head, tick)
	}
	assert.Positive(t, head.Spawned())
	assert.Positive(t, head.Forwarded())
}

// Runs a full three rank pipeline and checks conservation: every vehicle a
// rank takes in leaves it exactly once or is still in flight at the end,
// and the statistics gather sees one sample per segment exit.
//
//nolint:funlen // scenario test
func TestSimulation_PipelineConservation(t *testing.T) {
	const size = 3
	params := testParams(func(p *config.Params) {
		p.RoadLength = 90
		p.LaneCount = 2
		p.MaxSpeed = 5
		p.ProbSlowDown = 0.2
		p.ProbChange = 0.5
		p.ProbSpawn = 0.6
		p.MaxTicks = 300
		p.WarmupTicks = 0
	})
	network, err := inproc.NewNetwork(size)
	require.NoError(t, err)

	sims := make([]*Simulation, size)
	results := make([]*Result, size)
	errs := make(chan error, size)
	for rank := 0; rank < size; rank++ {
		conn, connErr := network.Conn(rank)
		require.NoError(t, connErr)
		sims[rank] = NewSimulation(rank, size, params,
			WithRand(rand.New(rand.NewSource(int64(20+rank)))))
		go func(rank int, conn transport.Conn) {
			result, runErr := sims[rank].Run(context.Background(), conn)
			results[rank] = result
			errs <- runErr
		}(rank, conn)
	}
	for i := 0; i < size; i++ {
		require.NoError(t, <-errs)
	}

	head := sims[0]
	assert.Positive(t, head.Spawned(), "head must have spawned traffic")
	// per rank balance: inflow equals outflow plus vehicles still in flight
	assert.Equal(t, head.Spawned(), head.Forwarded()+len(head.Vehicles()))
	for rank := 1; rank < size; rank++ {
		s := sims[rank]
		assert.Equal(t, sims[rank-1].Forwarded(), s.Arrived(),
			"rank %d must receive what rank %d forwarded", rank, rank-1)
		outflow := s.Forwarded() + s.Exited()
		assert.Equal(t, s.Arrived(), outflow+len(s.Vehicles()),
			"rank %d conservation", rank)
	}
	// every segment exit is recorded exactly once
	for rank, s := range sims {
		wantSamples := s.Forwarded() + s.Exited()
		assert.EqualValues(t, wantSamples, s.TravelTime().Count,
			"rank %d sample count", rank)
	}

	require.NotNil(t, results[0])
	require.True(t, results[0].HasStats)
	var totalSamples float64
	for _, s := range sims {
		totalSamples += s.TravelTime().Count
	}
	assert.EqualValues(t, totalSamples, results[0].Combined.Count)
	if totalSamples > 0 {
		assert.Positive(t, results[0].Combined.Mean)
	}
}

// Samples inside the warm-up window are not recorded.
func TestSimulation_WarmupGating(t *testing.T) {
	params := testParams(func(p *config.Params) {
		p.RoadLength = 20
		p.MaxSpeed = 5
		p.MaxTicks = 10
		p.WarmupTicks = 9
	})
	network, err := inproc.NewNetwork(2)
	require.NoError(t, err)
	conn0, err := network.Conn(0)
	require.NoError(t, err)
	conn1, err := network.Conn(1)
	require.NoError(t, err)

	head := NewSimulation(0, 2, params, WithRand(rand.New(rand.NewSource(12))))
	v := placeVehicle(t, head.Road(), 0, 1, 9)
	v.SetSpeed(5)
	head.vehicles = append(head.vehicles, v)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		//nolint:errcheck // drained for the blocking send only
		conn1.Recv(ctx)
	}()
	require.NoError(t, head.step(ctx, conn0))
	assert.Equal(t, 1, head.Forwarded())
	assert.Zero(t, head.TravelTime().Count, "exit during warm-up must not be recorded")
}
