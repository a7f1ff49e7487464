// Package config loads experiment settings with viper from defaults, an optional config file and
// MOODARIMA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/aouyang1/go-moodarima"
	"github.com/aouyang1/go-moodarima/arima"
	"github.com/aouyang1/go-moodarima/backtest"
	"github.com/aouyang1/go-moodarima/cohort"
	"github.com/aouyang1/go-moodarima/series"
	"github.com/aouyang1/go-moodarima/split"

	"github.com/spf13/viper"
)

var ErrUnknownSource = errors.New("unknown data source")

const EnvPrefix = "MOODARIMA"

const (
	SourceCSV    = "csv"
	SourceSQLite = series.DriverSQLite
	SourceMySQL  = series.DriverMySQL
)

// Data selects where patient series are read from
type Data struct {
	Source  string `mapstructure:"source"`
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// Report lists optional output files. Empty paths are not written.
type Report struct {
	JSON    string `mapstructure:"json"`
	Plot    string `mapstructure:"plot"`
	Metrics string `mapstructure:"metrics"`
}

// Logging configures the slog handler
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full configuration tree
type Config struct {
	Data       Data              `mapstructure:"data"`
	Experiment moodarima.Options `mapstructure:"experiment"`
	Split      split.Proportions `mapstructure:"split"`
	Backtest   backtest.Options  `mapstructure:"backtest"`
	ARIMA      arima.Options     `mapstructure:"arima"`
	Cohort     cohort.Options    `mapstructure:"cohort"`
	Logging    Logging           `mapstructure:"logging"`
	Report     Report            `mapstructure:"report"`
}

// SetDefaults registers the default of every key. Keys without a default are not picked up from
// the environment on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.dir", "./patient_data")
	v.SetDefault("data.pattern", series.DefaultPattern)
	v.SetDefault("data.dsn", "")
	v.SetDefault("data.table", series.DefaultTable)

	v.SetDefault("experiment.lags", []int{moodarima.DefaultLag})
	v.SetDefault("experiment.mode", string(split.ModeTest))
	v.SetDefault("experiment.first_patient", moodarima.DefaultFirstPatient)
	v.SetDefault("experiment.last_patient", moodarima.DefaultLastPatient)
	v.SetDefault("experiment.workers", runtime.NumCPU())

	p := split.NewDefaultProportions()
	v.SetDefault("split.train", p.Train)
	v.SetDefault("split.validation", p.Validation)
	v.SetDefault("split.test", p.Test)

	bt := backtest.NewDefaultOptions()
	v.SetDefault("backtest.target", string(bt.Target))
	v.SetDefault("backtest.failure_policy", string(bt.Policy))
	v.SetDefault("backtest.check_shift", bt.CheckShift)
	v.SetDefault("backtest.shift_tolerance", bt.ShiftTolerance)

	ar := arima.NewDefaultOptions()
	v.SetDefault("arima.method", string(ar.Method))
	v.SetDefault("arima.max_iterations", ar.MaxIterations)
	v.SetDefault("arima.fit_timeout", ar.FitTimeout.String())
	v.SetDefault("arima.min_residual_dof", ar.MinResidualDOF)

	v.SetDefault("cohort.size", 0)
	v.SetDefault("cohort.critical_value", 0.0)
	v.SetDefault("cohort.confidence", cohort.DefaultConfidence)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("report.json", "")
	v.SetDefault("report.plot", "")
	v.SetDefault("report.metrics", "")
}

// Load reads configuration from file and environment variables. An empty path searches for
// moodarima.yaml in the working directory and ./configs; not finding one is fine, while an
// explicit path must exist.
// MOODARIMA_EXPERIMENT_WORKERS=4 overrides experiment.workers.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("unable to read config, %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("moodarima")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config, %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals the full configuration tree
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config, %w", err)
	}
	return &cfg, nil
}

// ExperimentOptions assembles validated driver options from the experiment, split, backtest, arima
// and cohort sections
func ExperimentOptions(v *viper.Viper) (*moodarima.Options, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	return cfg.Options()
}

// Options assembles validated driver options
func (c *Config) Options() (*moodarima.Options, error) {
	opt := c.Experiment
	opt.Split = c.Split
	opt.Backtest = &c.Backtest
	opt.ARIMA = &c.ARIMA
	opt.Cohort = &c.Cohort
	return opt.Validate()
}

// OpenProvider opens the configured series provider. The returned close function releases any
// database connection.
func OpenProvider(d Data) (series.Provider, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(d.Source) {
	case "", SourceCSV:
		p := series.NewCSVProvider(d.Dir)
		if d.Pattern != "" {
			p.Pattern = d.Pattern
		}
		return p, noop, nil
	case SourceSQLite, SourceMySQL:
		db, err := series.OpenSQL(strings.ToLower(d.Source), d.DSN)
		if err != nil {
			return nil, noop, err
		}
		p, err := series.NewSQLProvider(db, d.Table)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		return p, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("%q, %w", d.Source, ErrUnknownSource)
	}
}
