// Package config loads the service configuration. Values come from the
// built-in defaults, then an optional YAML file, then a .env file, then the
// environment; command line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/report"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	DriverUCI     = "uci"
	DriverSession = "session"
)

type Server struct {
	Host string `envconfig:"SERVER_HOST" mapstructure:"host"`
	Port string `envconfig:"SERVER_PORT" mapstructure:"port"`
}

func (s Server) Addr() string {
	return s.Host + ":" + s.Port
}

type Stockfish struct {
	Path string   `envconfig:"STOCKFISH_PATH" mapstructure:"path"`
	Args []string `envconfig:"STOCKFISH_ARGS" mapstructure:"args"`
	// Hash is a size such as "128MB".
	Hash             string        `envconfig:"STOCKFISH_HASH" mapstructure:"hash"`
	Threads          int           `envconfig:"STOCKFISH_THREADS" mapstructure:"threads"`
	HandshakeTimeout time.Duration `envconfig:"STOCKFISH_HANDSHAKE_TIMEOUT" mapstructure:"handshake_timeout"`
}

type Analysis struct {
	Depth   int           `envconfig:"ANALYSIS_DEPTH" mapstructure:"depth"`
	Lines   int           `envconfig:"ANALYSIS_LINES" mapstructure:"lines"`
	Timeout time.Duration `envconfig:"ANALYSIS_TIMEOUT" mapstructure:"timeout"`
}

type Report struct {
	// Driver is "uci" for a dedicated engine process or "session" to share
	// the analysis engine.
	Driver string `envconfig:"REPORT_DRIVER" mapstructure:"driver"`
	Depth  int    `envconfig:"REPORT_DEPTH" mapstructure:"depth"`
	Lines  int    `envconfig:"REPORT_LINES" mapstructure:"lines"`
}

type Feed struct {
	URL string `envconfig:"FEED_URL" mapstructure:"url"`
}

type Log struct {
	Level  string `envconfig:"LOG_LEVEL" mapstructure:"level"`
	Pretty bool   `envconfig:"LOG_PRETTY" mapstructure:"pretty"`
}

type Configuration struct {
	Server    Server    `mapstructure:"server"`
	Stockfish Stockfish `mapstructure:"stockfish"`
	Analysis  Analysis  `mapstructure:"analysis"`
	Report    Report    `mapstructure:"report"`
	Feed      Feed      `mapstructure:"feed"`
	Log       Log       `mapstructure:"log"`
}

func Default() *Configuration {
	return &Configuration{
		Server: Server{Port: "8080"},
		Stockfish: Stockfish{
			Path:             "stockfish",
			Hash:             "128MB",
			Threads:          1,
			HandshakeTimeout: engine.DefaultHandshakeTimeout,
		},
		Analysis: Analysis{
			Depth:   chessanalysis.DefaultOptions.Depth,
			Lines:   chessanalysis.DefaultOptions.Lines,
			Timeout: chessanalysis.DefaultOptions.Timeout,
		},
		Report: Report{
			Driver: DriverUCI,
			Depth:  report.DefaultOptions.Depth,
			Lines:  report.DefaultOptions.Lines,
		},
		Log: Log{Level: "info"},
	}
}

// InitConfig loads the configuration from file (or chess-analysis.yaml when
// file is empty), ./.env and the environment.
func InitConfig(file string) (*Configuration, error) {
	return Load(file, ".env")
}

func Load(file, envFile string) (*Configuration, error) {
	config := Default()
	if err := readFile(config, file); err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return config, nil
}

func readFile(config *Configuration, file string) error {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("chess-analysis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chess-analysis"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("decoding %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

func (c *Configuration) Validate() error {
	switch {
	case c.Stockfish.Path == "":
		return fmt.Errorf("%w: stockfish path is empty", ErrInvalid)
	case c.Stockfish.Threads <= 0:
		return fmt.Errorf("%w: stockfish threads must be positive", ErrInvalid)
	case c.Analysis.Depth <= 0, c.Analysis.Lines <= 0, c.Analysis.Timeout <= 0:
		return fmt.Errorf("%w: analysis depth, lines and timeout must be positive", ErrInvalid)
	case c.Report.Depth <= 0, c.Report.Lines <= 0:
		return fmt.Errorf("%w: report depth and lines must be positive", ErrInvalid)
	case c.Report.Driver != DriverUCI && c.Report.Driver != DriverSession:
		return fmt.Errorf("%w: unknown report driver %q", ErrInvalid, c.Report.Driver)
	}
	if _, err := c.HashMB(); err != nil {
		return err
	}
	return nil
}

// HashMB converts Stockfish.Hash to the megabytes the engine Hash option
// takes. An empty size leaves the engine default and returns 0.
func (c *Configuration) HashMB() (int, error) {
	if c.Stockfish.Hash == "" {
		return 0, nil
	}
	size, err := bytesize.Parse(c.Stockfish.Hash)
	if err != nil {
		return 0, fmt.Errorf("%w: stockfish hash %q: %v", ErrInvalid, c.Stockfish.Hash, err)
	}
	mb := int(size / bytesize.MB)
	if mb < 1 {
		return 0, fmt.Errorf("%w: stockfish hash %q is below 1MB", ErrInvalid, c.Stockfish.Hash)
	}
	return mb, nil
}

// EngineConfig is the session configuration: options sent during the
// handshake and its timeout.
func (c *Configuration) EngineConfig() (engine.Config, error) {
	hash, err := c.HashMB()
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.Config{HandshakeTimeout: c.Stockfish.HandshakeTimeout}
	if hash > 0 {
		cfg.Options = append(cfg.Options, engine.IntOption("Hash", hash))
	}
	cfg.Options = append(cfg.Options, engine.IntOption("Threads", c.Stockfish.Threads))
	return cfg, nil
}

func (c *Configuration) ClientConfig() (chessanalysis.Config, error) {
	engineCfg, err := c.EngineConfig()
	if err != nil {
		return chessanalysis.Config{}, err
	}
	return chessanalysis.Config{
		EnginePath: c.Stockfish.Path,
		EngineArgs: c.Stockfish.Args,
		Engine:     engineCfg,
		Defaults: chessanalysis.Options{
			Depth:   c.Analysis.Depth,
			Lines:   c.Analysis.Lines,
			Timeout: c.Analysis.Timeout,
		},
	}, nil
}

func (c *Configuration) ReportOptions() report.Options {
	return report.Options{Depth: c.Report.Depth, Lines: c.Report.Lines}
}

func (c *Configuration) UCIEngineOptions() (report.EngineOptions, error) {
	hash, err := c.HashMB()
	if err != nil {
		return report.EngineOptions{}, err
	}
	return report.EngineOptions{Hash: hash, Threads: c.Stockfish.Threads}, nil
}
