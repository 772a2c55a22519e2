package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, loaded from the environment
type Config struct {
	HTTPPort string `envconfig:"PORT" default:"8080"`

	MongoURI      string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string        `envconfig:"MONGO_DATABASE" default:"dosewise"`
	MongoTimeout  time.Duration `envconfig:"MONGO_TIMEOUT" default:"30s"`

	JWTSecret   string        `envconfig:"JWT_SECRET" default:"dev-secret"`
	JWTDuration time.Duration `envconfig:"JWT_DURATION" default:"24h"`

	// Occurrence generation
	GenerationHorizonDays int           `envconfig:"GENERATION_HORIZON_DAYS" default:"30"`
	GenerationInterval    time.Duration `envconfig:"GENERATION_INTERVAL" default:"24h"`

	// Missed-dose sweep
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`
	SweepTimeout  time.Duration `envconfig:"SWEEP_TIMEOUT" default:"10m"`
	SweepLookback time.Duration `envconfig:"SWEEP_LOOKBACK" default:"168h"`

	// Dose actions
	UndoWindow time.Duration `envconfig:"UNDO_WINDOW" default:"30s"`

	// Adherence evaluation
	AdherenceWindowDays int `envconfig:"ADHERENCE_WINDOW_DAYS" default:"30"`

	// Event bus; async dispatches projection updates off the request path
	AsyncEventBus bool `envconfig:"ASYNC_EVENT_BUS" default:"false"`

	// Drug-name verification service
	DrugVerifyBaseURL    string        `envconfig:"DRUG_VERIFY_BASE_URL" default:""`
	DrugVerifyRetries    int           `envconfig:"DRUG_VERIFY_RETRIES" default:"3"`
	DrugVerifyRetryWait  time.Duration `envconfig:"DRUG_VERIFY_RETRY_WAIT" default:"500ms"`
	DrugVerifyTimeout    time.Duration `envconfig:"DRUG_VERIFY_TIMEOUT" default:"5s"`
}

// Load reads configuration from .env (when present) and the process
// environment
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
