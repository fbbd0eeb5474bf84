// Package config loads the gemstone configuration from file, environment and
// flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/askiada/gemstone-pipeline/internal/logging"
	"github.com/askiada/gemstone-pipeline/internal/regress"
)

// EnvPrefix prefixes every environment variable, e.g. GEMSTONE_ARTIFACTS_ROOT.
const EnvPrefix = "GEMSTONE"

type Config struct {
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Training  TrainingConfig  `mapstructure:"training"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   logging.Config  `mapstructure:"logging"`
}

type ArtifactsConfig struct {
	Root string `mapstructure:"root"`
}

type IngestionConfig struct {
	Source       string  `mapstructure:"source"`
	TestFraction float64 `mapstructure:"test_fraction"`
	Seed         int64   `mapstructure:"seed"`
	RandomSplit  bool    `mapstructure:"random_split"`
	Concurrency  int     `mapstructure:"concurrency"`
	GraphFile    string  `mapstructure:"graph_file"`
}

type TrainingConfig struct {
	Candidates []string `mapstructure:"candidates"`
	MinRows    int      `mapstructure:"min_rows"`
	Alpha      float64  `mapstructure:"alpha"`
	L1Ratio    float64  `mapstructure:"l1_ratio"`
	MaxIter    int      `mapstructure:"max_iter"`
	Tol        float64  `mapstructure:"tol"`
}

// Params returns the estimator parameters.
func (t TrainingConfig) Params() regress.Params {
	return regress.Params{Alpha: t.Alpha, L1Ratio: t.L1Ratio, MaxIter: t.MaxIter, Tol: t.Tol}
}

type TrackingConfig struct {
	URI             string `mapstructure:"uri"`
	RegisteredModel string `mapstructure:"registered_model"`
}

type ScheduleConfig struct {
	Cron       string        `mapstructure:"cron"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type RemoteConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	params := regress.DefaultParams()

	v.SetDefault("artifacts.root", "artifacts")

	v.SetDefault("ingestion.source", filepath.Join("experiment", "datasets", "train.csv"))
	v.SetDefault("ingestion.test_fraction", 0.25)
	v.SetDefault("ingestion.seed", 42)
	v.SetDefault("ingestion.random_split", false)
	v.SetDefault("ingestion.concurrency", 1)
	v.SetDefault("ingestion.graph_file", "")

	v.SetDefault("training.candidates", regress.DefaultCandidates)
	v.SetDefault("training.min_rows", 2)
	v.SetDefault("training.alpha", params.Alpha)
	v.SetDefault("training.l1_ratio", params.L1Ratio)
	v.SetDefault("training.max_iter", params.MaxIter)
	v.SetDefault("training.tol", params.Tol)

	v.SetDefault("tracking.uri", "file://mlruns")
	v.SetDefault("tracking.registered_model", "ml_model")

	v.SetDefault("schedule.cron", "*/5 * * * *")
	v.SetDefault("schedule.retries", 2)
	v.SetDefault("schedule.retry_delay", 30*time.Second)
	v.SetDefault("schedule.stale_after", time.Hour)

	v.SetDefault("remote.bucket", "")
	v.SetDefault("remote.prefix", "artifact")
	v.SetDefault("remote.region", "")

	v.SetDefault("server.addr", ":8080")

	def := logging.DefaultConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.format", def.Format)
	v.SetDefault("logging.output", def.Output)
	v.SetDefault("logging.development", def.Development)
}

// Load reads file, or gemstone.yaml from the working directory or
// $HOME/.config/gemstone when file is empty. A missing default file is not an
// error. Environment variables override the file.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("gemstone")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gemstone"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings no run could succeed with.
func (c Config) Validate() error {
	if c.Artifacts.Root == "" {
		return errors.New("artifacts.root is required")
	}
	if c.Ingestion.TestFraction <= 0 || c.Ingestion.TestFraction >= 1 {
		return errors.Errorf("ingestion.test_fraction must be in (0, 1), got %v", c.Ingestion.TestFraction)
	}
	if len(c.Training.Candidates) == 0 {
		return errors.New("training.candidates is empty")
	}
	_, err := regress.Candidates(c.Training.Candidates, c.Training.Params())
	if err != nil {
		return errors.Wrap(err, "training.candidates")
	}
	if c.Training.MinRows < 1 {
		return errors.Errorf("training.min_rows must be positive, got %d", c.Training.MinRows)
	}
	_, err = cron.ParseStandard(c.Schedule.Cron)
	if err != nil {
		return errors.Wrapf(err, "schedule.cron %q", c.Schedule.Cron)
	}
	if c.Schedule.Retries < 0 {
		return errors.Errorf("schedule.retries must not be negative, got %d", c.Schedule.Retries)
	}

	return nil
}
