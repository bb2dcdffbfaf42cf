package config

import (
	"errors"
	"fmt"
	"strings"

	"crossarb/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "CROSSARB"

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Simulation SimulationConfig
	Pair       model.Pair
	Input      InputConfig
	Output     OutputConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
}

// SimulationConfig holds the cost and threshold settings of a backtest.
type SimulationConfig struct {
	InitialCapital    float64 `mapstructure:"initial_capital" validate:"gt=0"`
	FixedDomesticFee  float64 `mapstructure:"fixed_domestic_fee" validate:"gte=0"`
	ForeignFeeRate    float64 `mapstructure:"foreign_fee_rate" validate:"gte=0"`
	MinRelativeSpread float64 `mapstructure:"min_relative_spread" validate:"gte=0"`
}

// InputConfig selects where the aligned observation table comes from.
type InputConfig struct {
	Source string `validate:"oneof=parquet postgres"`
	Path   string `validate:"required_if=Source parquet"`
	// SeedPath is a parquet artifact upserted into postgres before the run.
	SeedPath string `mapstructure:"seed_path" validate:"excluded_unless=Source postgres"`
	// Start and End bound a postgres query, formatted as 2006-01-02.
	Start string `validate:"omitempty,datetime=2006-01-02"`
	End   string `validate:"omitempty,datetime=2006-01-02"`
}

// OutputConfig defines where results are written besides stdout.
type OutputConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
	Persist     bool
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN returns a postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.initial_capital", 10000.0)
	v.SetDefault("simulation.fixed_domestic_fee", 30.0)
	v.SetDefault("simulation.foreign_fee_rate", 0.0003)
	v.SetDefault("simulation.min_relative_spread", 0.001)

	v.SetDefault("pair.domestic_ticker", "SHOP.TO")
	v.SetDefault("pair.foreign_ticker", "SHOP")
	v.SetDefault("pair.domestic_currency", "CAD")
	v.SetDefault("pair.foreign_currency", "USD")

	v.SetDefault("input.source", "parquet")
	v.SetDefault("input.path", "observations.parquet")
	v.SetDefault("input.seed_path", "")
	v.SetDefault("input.start", "")
	v.SetDefault("input.end", "")

	v.SetDefault("output.parquet_path", "")
	v.SetDefault("output.persist", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "crossarb")

	v.SetDefault("logging.level", "info")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config.yaml is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	err = config.Validate()
	return
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks the simulation settings on their own. NewEngine calls it.
func (s SimulationConfig) Validate() error {
	return validate.Struct(s)
}
