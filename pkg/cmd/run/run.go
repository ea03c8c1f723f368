package run

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trafficlab/roadsim/log"
	"github.com/trafficlab/roadsim/pkg/cmd/util"
	"github.com/trafficlab/roadsim/pkg/config"
	"github.com/trafficlab/roadsim/pkg/sim"
	"github.com/trafficlab/roadsim/pkg/transport/inproc"
)

var seed int64

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "runs the whole simulation in one process",
		Long: `Runs every worker rank as a goroutine connected through in-process
queues. Useful for local experiments and development; use the worker
command for a distributed run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation()
		},
	}
	cmd.Flags().IntVarP(&config.Workers,
		"workers",
		"w",
		2,
		"number of worker ranks (at least 2)")
	cmd.Flags().Int64Var(&seed,
		"seed",
		0,
		"random seed, 0 seeds from the clock")
	return cmd
}

//nolint:funlen // by design
func runSimulation() error {
	util.SetupLogger()
	params, err := config.LoadParams(config.ParamsFile)
	if err != nil {
		log.Error("could not load simulation parameters", log.ErrorField(err))
		os.Exit(1)
	}
	size := config.Workers
	network, err := inproc.NewNetwork(size)
	if err != nil {
		return err
	}
	telemetry := util.MaybeSetupTelemetry()

	fmt.Println("================================================")
	fmt.Println("||    CELLULAR AUTOMATA TRAFFIC SIMULATION    ||")
	fmt.Println("================================================")

	baseSeed := seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}
	ctx := context.Background()
	results := make([]*sim.Result, size)
	errs := make(chan error, size)
	for rank := 0; rank < size; rank++ {
		conn, connErr := network.Conn(rank)
		if connErr != nil {
			return connErr
		}
		go func(rank int) {
			//nolint:gosec // simulation randomness, not crypto
			rng := rand.New(rand.NewSource(baseSeed + int64(rank)))
			worker := sim.NewSimulation(rank, size, params,
				sim.WithRand(rng),
				sim.WithLogger(log.Default().Named(fmt.Sprintf("sim.%d", rank))))
			result, runErr := worker.Run(ctx, conn)
			results[rank] = result
			errs <- runErr
		}(rank)
	}
	for i := 0; i < size; i++ {
		if runErr := <-errs; runErr != nil {
			return runErr
		}
	}
	results[0].Print(os.Stdout)
	if telemetry != nil {
		telemetry.Shutdown()
	}
	return nil
}
