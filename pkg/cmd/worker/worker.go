package worker

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/trafficlab/roadsim/log"
	"github.com/trafficlab/roadsim/pkg/cmd/util"
	"github.com/trafficlab/roadsim/pkg/config"
	"github.com/trafficlab/roadsim/pkg/sim"
	"github.com/trafficlab/roadsim/pkg/transport/natsrelay"
)

var seed int64

func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "runs one worker rank of a distributed simulation",
		Long: `Runs exactly one rank of the chain. Start one worker process per rank,
all pointing at the same NATS server and subject prefix. Rank 0 spawns
the traffic and reports the combined statistics at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
	cmd.Flags().IntVarP(&config.Rank,
		"rank",
		"r",
		0,
		"rank of this worker within the chain")
	cmd.Flags().IntVarP(&config.Size,
		"size",
		"s",
		2,
		"total number of workers (at least 2)")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		nats.DefaultURL,
		"URL of the NATS server connecting the workers")
	cmd.Flags().StringVar(&config.SubjectPrefix,
		"subject-prefix",
		"roadsim",
		"NATS subject prefix shared by all workers of one run")
	cmd.Flags().Int64Var(&seed,
		"seed",
		0,
		"random seed, 0 seeds from the clock")
	return cmd
}

//nolint:funlen // by design
func runWorker() error {
	util.SetupLogger()
	params, err := config.LoadParams(config.ParamsFile)
	if err != nil {
		log.Error("could not load simulation parameters", log.ErrorField(err))
		os.Exit(1)
	}
	if config.Size < 2 {
		return fmt.Errorf("it takes at least 2 workers to run the simulation, got %d",
			config.Size)
	}
	telemetry := util.MaybeSetupTelemetry()

	nc, err := nats.Connect(config.NatsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second))
	if err != nil {
		return fmt.Errorf("could not connect to NATS at %s: %w", config.NatsURL, err)
	}
	defer nc.Close()

	ctx := context.Background()
	relay, err := natsrelay.New(ctx, nc, config.Rank, config.Size, config.SubjectPrefix)
	if err != nil {
		return err
	}
	defer relay.Close()

	if config.Rank == 0 {
		fmt.Println("================================================")
		fmt.Println("||    CELLULAR AUTOMATA TRAFFIC SIMULATION    ||")
		fmt.Println("================================================")
	}

	workerSeed := seed
	if workerSeed == 0 {
		workerSeed = time.Now().UnixNano()
	}
	//nolint:gosec // simulation randomness, not crypto
	rng := rand.New(rand.NewSource(workerSeed + int64(config.Rank)))
	worker := sim.NewSimulation(config.Rank, config.Size, params,
		sim.WithRand(rng),
		sim.WithLogger(log.Default().Named(fmt.Sprintf("sim.%d", config.Rank))))

	result, err := worker.Run(ctx, relay)
	if err != nil {
		return err
	}
	if config.Rank == 0 {
		result.Print(os.Stdout)
	}
	if telemetry != nil {
		telemetry.Shutdown()
	}
	return nil
}
