package config

import (
	"time"

	"github.com/spf13/viper"
)

// SiteConfig locates the unit on Earth.
type SiteConfig struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Elevation float64 `mapstructure:"elevation"`
}

// SafetyConfig tunes the safety monitor.
type SafetyConfig struct {
	PowerStale      time.Duration `mapstructure:"power_stale"`
	WeatherStale    time.Duration `mapstructure:"weather_stale"`
	RequiredSpaceGB float64       `mapstructure:"required_space_gb"`
	ObserveHorizon  float64       `mapstructure:"observe_horizon"`
	FlatHorizon     float64       `mapstructure:"flat_horizon"`
	FocusHorizon    float64       `mapstructure:"focus_horizon"`
}

// SchedulerConfig tunes target selection.
type SchedulerConfig struct {
	FieldsFile        string  `mapstructure:"fields_file"`
	AlwaysCheckFields bool    `mapstructure:"always_check_fields"`
	AltitudeWeight    float64 `mapstructure:"altitude_weight"`
	DurationWeight    float64 `mapstructure:"duration_weight"`
	MoonWeight        float64 `mapstructure:"moon_weight"`
	VisitedWeight     float64 `mapstructure:"visited_weight"`
	MoonMinSeparation float64 `mapstructure:"moon_min_separation"`
}

// EngineConfig tunes the control loop.
type EngineConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	SlewTimeout  time.Duration `mapstructure:"slew_timeout"`
	CameraGrace  time.Duration `mapstructure:"camera_grace"`
	RunOnce      bool          `mapstructure:"run_once"`
	ExitWhenDone bool          `mapstructure:"exit_when_done"`
	StateTable   string        `mapstructure:"state_table"`
}

// Config holds all runtime configuration for a nightwatch unit.
// Values are populated from .nightwatch.yaml, NIGHTWATCH_* env vars, and
// CLI flags.
type Config struct {
	Site           SiteConfig      `mapstructure:"site"`
	Safety         SafetyConfig    `mapstructure:"safety"`
	Scheduler      SchedulerConfig `mapstructure:"scheduler"`
	Engine         EngineConfig    `mapstructure:"engine"`
	Simulators     []string        `mapstructure:"simulators"`
	ImageDir       string          `mapstructure:"image_dir"`
	DBPath         string          `mapstructure:"db_path"`
	TelemetryPath  string          `mapstructure:"telemetry_path"`
	HorizonProfile string          `mapstructure:"horizon_profile"`
	Cameras        int             `mapstructure:"cameras"`
	Verbose        bool            `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags. The stock site is
// the PAN001 location on Mauna Loa.
func Load() (Config, error) {
	viper.SetDefault("site.name", "Mauna Loa Observatory")
	viper.SetDefault("site.latitude", 19.54)
	viper.SetDefault("site.longitude", -155.58)
	viper.SetDefault("site.elevation", 3400.0)

	viper.SetDefault("safety.power_stale", time.Minute)
	viper.SetDefault("safety.weather_stale", 3*time.Minute)
	viper.SetDefault("safety.required_space_gb", 1.0)
	viper.SetDefault("safety.observe_horizon", -18.0)
	viper.SetDefault("safety.flat_horizon", -6.0)
	viper.SetDefault("safety.focus_horizon", -12.0)

	viper.SetDefault("scheduler.fields_file", "fields.yaml")
	viper.SetDefault("scheduler.always_check_fields", false)
	viper.SetDefault("scheduler.altitude_weight", 1.0)
	viper.SetDefault("scheduler.duration_weight", 1.0)
	viper.SetDefault("scheduler.moon_weight", 1.0)
	viper.SetDefault("scheduler.visited_weight", 1.0)
	viper.SetDefault("scheduler.moon_min_separation", 15.0)

	viper.SetDefault("engine.delay", 5*time.Second)
	viper.SetDefault("engine.slew_timeout", 3*time.Minute)
	viper.SetDefault("engine.camera_grace", time.Minute)
	viper.SetDefault("engine.run_once", false)
	viper.SetDefault("engine.exit_when_done", false)
	viper.SetDefault("engine.state_table", "")

	viper.SetDefault("simulators", []string{})
	viper.SetDefault("image_dir", "images")
	viper.SetDefault("db_path", "nightwatch.db")
	viper.SetDefault("telemetry_path", "nightwatch.jsonl")
	viper.SetDefault("horizon_profile", "")
	viper.SetDefault("cameras", 2)
	viper.SetDefault("verbose", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequiredSpaceBytes converts the configured free-space floor to bytes.
func (c SafetyConfig) RequiredSpaceBytes() uint64 {
	return uint64(c.RequiredSpaceGB * float64(1<<30))
}
