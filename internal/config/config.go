package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const EnvPrefix = "FETCHOPUS"

type Config struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Scheduler struct {
		Interval          time.Duration `mapstructure:"interval"`
		InitialDelay      time.Duration `mapstructure:"initialDelay"`
		MaxAttempts       int           `mapstructure:"maxAttempts"`
		ErrorLogMaxLength int           `mapstructure:"errorLogMaxLength"`
		TempDir           string        `mapstructure:"tempDir"`
	} `mapstructure:"scheduler"`

	Browse struct {
		EvictInterval time.Duration `mapstructure:"evictInterval"`
		MaxIdle       time.Duration `mapstructure:"maxIdle"`
	} `mapstructure:"browse"`

	SSH struct {
		KnownHosts string        `mapstructure:"knownHosts"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ssh"`

	FTP struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ftp"`

	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "fetchopus.sqlite")
	v.SetDefault("scheduler.interval", 5*time.Minute)
	v.SetDefault("scheduler.initialDelay", 20*time.Second)
	v.SetDefault("scheduler.maxAttempts", 3)
	v.SetDefault("scheduler.errorLogMaxLength", 4999)
	v.SetDefault("scheduler.tempDir", "")
	v.SetDefault("browse.evictInterval", time.Minute)
	v.SetDefault("browse.maxIdle", 10*time.Minute)
	v.SetDefault("ssh.knownHosts", "")
	v.SetDefault("ssh.timeout", 30*time.Second)
	v.SetDefault("ftp.timeout", 30*time.Second)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with the defaults and the environment
// bindings in place. Environment variables look like
// FETCHOPUS_SCHEDULER_INTERVAL.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile when set, or an optional fetchopus.yaml from the
// working directory, and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("fetchopus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read configuration")
		}
		// Do not fail if the config file is missing
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if cfg.Scheduler.Interval <= 0 {
		return nil, errors.Errorf("scheduler.interval must be positive, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Browse.EvictInterval <= 0 {
		return nil, errors.Errorf("browse.evictInterval must be positive, got %s", cfg.Browse.EvictInterval)
	}
	return &cfg, nil
}

// SetupLogging applies the log level and format to the standard logrus
// logger.
func SetupLogging(cfg *Config) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return errors.Wrap(err, "invalid log.level")
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:          true,
			ForceColors:            term.IsTerminal(int(os.Stderr.Fd())),
			DisableLevelTruncation: true,
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("invalid log.format %q", cfg.Log.Format)
	}
	return nil
}
