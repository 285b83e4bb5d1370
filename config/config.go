package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kcz17/statset/filters"
	"github.com/kcz17/statset/statistic"
	"github.com/spf13/viper"
)

type Config struct {
	Logging   Logging   `mapstructure:"logging" validate:"required"`
	Proxying  Proxying  `mapstructure:"proxying" validate:"required"`
	API       API       `mapstructure:"api" validate:"required"`
	Timers    Timers    `mapstructure:"timers" validate:"required"`
	Exporting Exporting `mapstructure:"exporting" validate:"required"`
}

type Logging struct {
	Level *string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type Proxying struct {
	FrontendPort *int    `mapstructure:"frontendPort" validate:"required,min=1,max=65535"`
	BackendHost  *string `mapstructure:"backendHost" validate:"required"`
	BackendPort  *int    `mapstructure:"backendPort" validate:"required,min=1,max=65535"`
	MaxConns     *int    `mapstructure:"maxConns" validate:"required,min=1"`
}

type API struct {
	Port *int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

type Timers struct {
	// Unit is parsed with statistic.ParseTimeUnit.
	Unit        *string `mapstructure:"unit" validate:"required"`
	Name        *string `mapstructure:"name" validate:"required"`
	GroupByPath *bool   `mapstructure:"groupByPath" validate:"required"`
	MaxPaths    *int    `mapstructure:"maxPaths" validate:"required,min=1"`
	// Exclude holds "[METHOD] [PATH]" rules for requests which are proxied
	// but not timed.
	Exclude []string `mapstructure:"exclude"`
}

type Exporting struct {
	// Interval is the reporting window length in seconds.
	Interval  *float64 `mapstructure:"interval" validate:"required,gt=0"`
	SkipEmpty *bool    `mapstructure:"skipEmpty" validate:"required"`
	Drivers   []string `mapstructure:"drivers" validate:"required,min=1,dive,oneof=noop stdout influxdb cloudwatch statsd redis"`
	// Driver sections are only validated when their driver is enabled.
	InfluxDB   InfluxDB   `mapstructure:"influxdb" validate:"-"`
	CloudWatch CloudWatch `mapstructure:"cloudwatch" validate:"-"`
	Statsd     Statsd     `mapstructure:"statsd" validate:"-"`
	Redis      Redis      `mapstructure:"redis" validate:"-"`
}

type InfluxDB struct {
	Host   *string `mapstructure:"host" validate:"required"`
	Token  *string `mapstructure:"token" validate:"required"`
	Org    *string `mapstructure:"org" validate:"required"`
	Bucket *string `mapstructure:"bucket" validate:"required"`
}

type CloudWatch struct {
	Namespace *string `mapstructure:"namespace" validate:"required"`
	Region    *string `mapstructure:"region" validate:"required"`
}

type Statsd struct {
	Addr       *string `mapstructure:"addr" validate:"required"`
	Namespace  *string `mapstructure:"namespace"`
	BufferSize *int    `mapstructure:"bufferSize" validate:"required,min=1"`
}

type Redis struct {
	Addr     *string `mapstructure:"addr" validate:"required"`
	Password *string `mapstructure:"password" validate:"required"`
	DB       *int    `mapstructure:"db" validate:"required"`
	Queue    *string `mapstructure:"queue" validate:"required"`
}

// HasDriver reports whether driver is among the configured export drivers.
func (e Exporting) HasDriver(driver string) bool {
	for _, d := range e.Drivers {
		if d == driver {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Logging.Level", "info")

	v.SetDefault("Proxying.BackendHost", "localhost")
	v.SetDefault("Proxying.MaxConns", 512)
	v.SetDefault("API.Port", 8079)

	v.SetDefault("Timers.Unit", "milliseconds")
	v.SetDefault("Timers.Name", "response_time")
	v.SetDefault("Timers.GroupByPath", true)
	v.SetDefault("Timers.MaxPaths", 100)
	v.SetDefault("Timers.Exclude", []string{})

	v.SetDefault("Exporting.Interval", 60)
	v.SetDefault("Exporting.SkipEmpty", true)
	v.SetDefault("Exporting.Drivers", []string{"stdout"})
	v.SetDefault("Exporting.Statsd.Namespace", "")
	v.SetDefault("Exporting.Statsd.BufferSize", 100)
	v.SetDefault("Exporting.Redis.Password", "")
	v.SetDefault("Exporting.Redis.DB", 0)
	v.SetDefault("Exporting.Redis.Queue", "statset-windows")
}

// Load reads the YAML file at path, or config.yaml from the working directory
// or /app when path is empty. Environment variables override the file, with
// nested keys joined by underscores (EXPORTING_INTERVAL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml not found in . or /app: err = %w", err)
		}
		return nil, fmt.Errorf("error when reading config file: err = %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error occurred while decoding configuration file: err = %w", err)
	}
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the struct tags and the timer settings, then requires a
// settings section for each enabled export driver.
func Validate(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return validationError(err)
	}
	if _, err := statistic.ParseTimeUnit(*config.Timers.Unit); err != nil {
		return fmt.Errorf("timers.unit: %w", err)
	}
	if _, err := filters.ParseRequestFilter(config.Timers.Exclude); err != nil {
		return fmt.Errorf("timers.exclude: %w", err)
	}

	sections := []struct {
		driver  string
		section interface{}
	}{
		{"influxdb", &config.Exporting.InfluxDB},
		{"cloudwatch", &config.Exporting.CloudWatch},
		{"statsd", &config.Exporting.Statsd},
		{"redis", &config.Exporting.Redis},
	}
	for _, s := range sections {
		if !config.Exporting.HasDriver(s.driver) {
			continue
		}
		if err := validate.Struct(s.section); err != nil {
			return fmt.Errorf("exporting.%s: %w", s.driver, validationError(err))
		}
	}
	return nil
}

func validationError(err error) error {
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("unable to validate config: err = %w", err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, fieldErr := range fieldErrs {
		msgs[i] = fieldErr.Error()
	}
	return fmt.Errorf("encountered validation errors:\n\t%s", strings.Join(msgs, "\n\t"))
}
