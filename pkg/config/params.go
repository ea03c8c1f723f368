package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Params holds the simulation parameters read from the parameter file.
// All probabilities are per tick.
type Params struct {
	RoadLength   int     `mapstructure:"roadLength"`   // total road length over all segments [cells]
	LaneCount    int     `mapstructure:"laneCount"`    // number of lanes
	MaxSpeed     int     `mapstructure:"maxSpeed"`     // speed limit [cells/tick]
	ProbSlowDown float64 `mapstructure:"probSlowDown"` // random braking probability
	ProbChange   float64 `mapstructure:"probChange"`   // lane change probability once eligible
	ProbSpawn    float64 `mapstructure:"probSpawn"`    // spawn probability per lane
	MaxTicks     int     `mapstructure:"maxTicks"`     // number of simulation ticks
	WarmupTicks  int     `mapstructure:"warmupTicks"`  // ticks excluded from statistics
}

// LoadParams reads and validates the simulation parameters from a YAML file.
func LoadParams(path string) (*Params, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read parameter file %s: %w", path, err)
	}
	ret := &Params{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, fmt.Errorf("could not parse parameter file %s: %w", path, err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

//nolint:cyclop // plain list of checks
func (p *Params) Validate() error {
	switch {
	case p.RoadLength <= 0:
		return fmt.Errorf("roadLength must be positive, got %d", p.RoadLength)
	case p.LaneCount <= 0:
		return fmt.Errorf("laneCount must be positive, got %d", p.LaneCount)
	case p.MaxSpeed <= 0:
		return fmt.Errorf("maxSpeed must be positive, got %d", p.MaxSpeed)
	case p.MaxTicks <= 0:
		return fmt.Errorf("maxTicks must be positive, got %d", p.MaxTicks)
	case p.WarmupTicks < 0 || p.WarmupTicks >= p.MaxTicks:
		return fmt.Errorf("warmupTicks must be in [0,maxTicks), got %d", p.WarmupTicks)
	}
	for _, probCheck := range []struct {
		name string
		val  float64
	}{
		{"probSlowDown", p.ProbSlowDown},
		{"probChange", p.ProbChange},
		{"probSpawn", p.ProbSpawn},
	} {
		if probCheck.val < 0 || probCheck.val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", probCheck.name, probCheck.val)
		}
	}
	return nil
}
