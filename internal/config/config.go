package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name, e.g. AETHER_LISTEN_ADDR.
const Prefix = "AETHER"

type Settings struct {
	ListenAddr   string   `envconfig:"LISTEN_ADDR" default:":8000"`
	DatabasePath string   `envconfig:"DATABASE_PATH" default:"/app/data/aether.db"`
	DockerHost   string   `envconfig:"DOCKER_HOST" default:""`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
	// AppDomain is the base domain apps are served under, e.g. <name>.localhost.
	AppDomain string `envconfig:"APP_DOMAIN" default:"localhost"`

	// Auth
	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-me-in-prod"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"60m"`

	// Containers
	KeepAliveCommand []string `envconfig:"KEEP_ALIVE_COMMAND" default:"sleep,infinity"`
	LogTail          int      `envconfig:"LOG_TAIL" default:"50"`

	// Terminal session settings
	ExecBaseURL        string        `envconfig:"EXEC_BASE_URL" default:"http://127.0.0.1:8000"`
	ExecTimeout        time.Duration `envconfig:"EXEC_TIMEOUT" default:"30s"`
	TerminalPrompt     string        `envconfig:"TERMINAL_PROMPT" default:"$ "`
	TerminalGreeting   string        `envconfig:"TERMINAL_GREETING" default:"Connected to container: %s"`
	TerminalInputRate  float64       `envconfig:"TERMINAL_INPUT_RATE" default:"50"`
	TerminalInputBurst int           `envconfig:"TERMINAL_INPUT_BURST" default:"200"`

	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 1m"`
	// TraceExporter is "stdout" or empty for no tracing.
	TraceExporter string `envconfig:"TRACE_EXPORTER" default:""`
}

var Cfg Settings

// Load reads the environment into Cfg and exits on malformed values.
func Load() {
	s, err := Process()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg = s
}

// Process reads and validates the settings without touching Cfg.
func Process() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the server cannot run with.
func (s Settings) Validate() error {
	if s.ExecTimeout <= 0 {
		return fmt.Errorf("%s_EXEC_TIMEOUT must be positive, got %s", Prefix, s.ExecTimeout)
	}
	if s.TokenTTL <= 0 {
		return fmt.Errorf("%s_TOKEN_TTL must be positive, got %s", Prefix, s.TokenTTL)
	}
	if s.JWTSecret == "" {
		return fmt.Errorf("%s_JWT_SECRET must not be empty", Prefix)
	}
	if len(s.KeepAliveCommand) == 0 {
		return fmt.Errorf("%s_KEEP_ALIVE_COMMAND must not be empty", Prefix)
	}
	if s.TraceExporter != "" && s.TraceExporter != "stdout" {
		return fmt.Errorf("%s_TRACE_EXPORTER: unknown exporter %q", Prefix, s.TraceExporter)
	}
	return nil
}
