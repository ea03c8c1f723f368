package config

// this holds the resolved configuration values from CLI
var (
	ParamsFile        string // path to the simulation parameter file
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	NatsURL           string // URL of the NATS server used between workers
	SubjectPrefix     string // prefix for all NATS subjects of one run
	Rank              int    // rank of this worker within the chain
	Size              int    // total number of workers
	Workers           int    // number of in-process workers (run command)
	EnableTelemetry   bool   // enable telemetry
	TelemetryInterval string // interval for exporting metrics
)
