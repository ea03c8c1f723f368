package sim

import (
	"math/rand"
	"testing"

	"github.com/trafficlab/roadsim/pkg/config"
)

func testParams(overrides func(*config.Params)) *config.Params {
	p := &config.Params{
		RoadLength:   1000,
		LaneCount:    1,
		MaxSpeed:     5,
		ProbSlowDown: 0,
		ProbChange:   1,
		ProbSpawn:    0,
		MaxTicks:     100,
		WarmupTicks:  0,
	}
	if overrides != nil {
		overrides(p)
	}
	return p
}

func placeVehicle(t *testing.T, road *Road, laneIdx, id, position int) *Vehicle {
	t.Helper()
	v := NewVehicle(laneIdx, id, position, road.vehicleParams())
	if err := road.Lane(laneIdx).AddVehicle(position, v); err != nil {
		t.Fatalf("could not place vehicle %d: %v", id, err)
	}
	return v
}

// A single vehicle on an empty lane accelerates one cell per tick up to the
// speed limit and then cruises.
func TestVehicle_FreeFlow(t *testing.T) {
	road := NewRoad(testParams(nil), 1000)
	rng := rand.New(rand.NewSource(1))
	v := placeVehicle(t, road, 0, 0, 0)

	wantSpeeds := []int{1, 2, 3, 4, 5, 5, 5, 5}
	position := 0
	for i, want := range wantSpeeds {
		v.UpdateGaps(road)
		if _, err := v.Advance(road, rng); err != nil {
			t.Fatalf("tick %d: Advance() error = %v", i, err)
		}
		if v.Speed() != want {
			t.Errorf("tick %d: speed = %d, want %d", i, v.Speed(), want)
		}
		position += want
		if v.Position() != position {
			t.Errorf("tick %d: position = %d, want %d", i, v.Position(), position)
		}
	}
}

// The post-update speed may never exceed the pre-update forward gap, which
// keeps the lane collision free.
func TestVehicle_BrakesToGap(t *testing.T) {
	road := NewRoad(testParams(nil), 1000)
	rng := rand.New(rand.NewSource(2))
	follower := placeVehicle(t, road, 0, 0, 10)
	follower.SetSpeed(5)
	placeVehicle(t, road, 0, 1, 13) // blocks two free cells ahead

	follower.UpdateGaps(road)
	preGap := follower.gapForward
	if preGap != 2 {
		t.Fatalf("gapForward = %d, want 2", preGap)
	}
	if _, err := follower.Advance(road, rng); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if follower.Speed() > preGap {
		t.Errorf("speed %d exceeds pre-update gap %d", follower.Speed(), preGap)
	}
	if follower.Position() != 12 {
		t.Errorf("position = %d, want 12", follower.Position())
	}
}

func TestVehicle_RandomSlowDown(t *testing.T) {
	road := NewRoad(testParams(func(p *config.Params) { p.ProbSlowDown = 1 }), 1000)
	rng := rand.New(rand.NewSource(3))
	v := placeVehicle(t, road, 0, 0, 0)

	// acceleration and guaranteed slow down cancel out
	for i := 0; i < 5; i++ {
		v.UpdateGaps(road)
		if _, err := v.Advance(road, rng); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if v.Speed() != 0 {
			t.Errorf("tick %d: speed = %d, want 0", i, v.Speed())
		}
	}
	if v.Position() != 0 {
		t.Errorf("position = %d, want 0", v.Position())
	}
}

func TestVehicle_LaneChange(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, road *Road) *Vehicle
		wantChange bool
	}{
		{
			name: "attractive and safe",
			setup: func(t *testing.T, road *Road) *Vehicle {
				v := placeVehicle(t, road, 0, 0, 20)
				placeVehicle(t, road, 0, 1, 22) // blocked in own lane
				return v
			},
			wantChange: true,
		},
		{
			name: "no incentive on equal gaps",
			setup: func(t *testing.T, road *Road) *Vehicle {
				return placeVehicle(t, road, 0, 0, 20)
			},
			wantChange: false,
		},
		{
			name: "unsafe on close follower",
			setup: func(t *testing.T, road *Road) *Vehicle {
				v := placeVehicle(t, road, 0, 0, 20)
				placeVehicle(t, road, 0, 1, 22) // blocked in own lane
				placeVehicle(t, road, 1, 2, 18) // follower in target lane
				return v
			},
			wantChange: false,
		},
		{
			name: "target cell occupied",
			setup: func(t *testing.T, road *Road) *Vehicle {
				v := placeVehicle(t, road, 0, 0, 20)
				placeVehicle(t, road, 0, 1, 22)
				placeVehicle(t, road, 1, 2, 20) // same position, other lane
				return v
			},
			wantChange: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			road := NewRoad(testParams(func(p *config.Params) { p.LaneCount = 2 }), 1000)
			rng := rand.New(rand.NewSource(4))
			v := tt.setup(t, road)
			v.UpdateGaps(road)
			changed, err := v.AttemptLaneChange(road, rng)
			if err != nil {
				t.Fatalf("AttemptLaneChange() error = %v", err)
			}
			if changed != tt.wantChange {
				t.Errorf("AttemptLaneChange() = %v, want %v", changed, tt.wantChange)
			}
			if tt.wantChange {
				if v.LaneIndex() != 1 {
					t.Errorf("lane index = %d, want 1", v.LaneIndex())
				}
				if !road.Lane(0).IsFree(20) {
					t.Error("old cell still occupied after change")
				}
				if road.Lane(1).VehicleAt(20) != v {
					t.Error("vehicle not bound into target lane")
				}
			}
		})
	}
}

func TestVehicle_NoLaneChangeOnSingleLane(t *testing.T) {
	road := NewRoad(testParams(nil), 1000)
	rng := rand.New(rand.NewSource(5))
	v := placeVehicle(t, road, 0, 0, 20)
	placeVehicle(t, road, 0, 1, 22)
	v.UpdateGaps(road)
	changed, err := v.AttemptLaneChange(road, rng)
	if err != nil {
		t.Fatalf("AttemptLaneChange() error = %v", err)
	}
	if changed {
		t.Error("lane change on a single lane road")
	}
}
