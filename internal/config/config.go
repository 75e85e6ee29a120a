package config

import (
	"errors"
	"fmt"
	"os"

	"lineup/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled       bool           `yaml:"enabled"`
	HeaderAPIKey  string         `yaml:"header_api_key"`
	HeaderActor   string         `yaml:"header_actor"`
	HeaderRole    string         `yaml:"header_role"`
	APIKeys       []APIClientKey `yaml:"api_keys"`
	StaffOverride bool           `yaml:"staff_override"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig holds the scheduling policy knobs. The tier thresholds are
// configuration on purpose: the margins are a venue decision, not a constant.
type BookingConfig struct {
	GranularityMinutes     int                        `yaml:"granularity_minutes"`
	DefaultDurationMinutes int                        `yaml:"default_duration_minutes"`
	CutoffMinutes          int                        `yaml:"cutoff_minutes"`
	HorizonDays            int                        `yaml:"horizon_days"`
	WarningMinutes         int                        `yaml:"warning_minutes"`
	SweepIntervalSeconds   int                        `yaml:"sweep_interval_seconds"`
	ExtensionIncrements    []int                      `yaml:"extension_increments"`
	RecommendedMargin      float64                    `yaml:"recommended_margin"`
	TightFitCovers         int                        `yaml:"tight_fit_covers"`
	RecommendedWindows     []models.RecommendedWindow `yaml:"recommended_windows"`
	HoldTTLSeconds         int                        `yaml:"hold_ttl_seconds"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	ScheduleSpreadsheetID string `yaml:"schedule_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; env vars may come from the environment directly.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.GranularityMinutes <= 0 {
		return errors.New("booking granularity must be positive")
	}
	if c.Booking.DefaultDurationMinutes%c.Booking.GranularityMinutes != 0 {
		return errors.New("default duration must be a multiple of the granularity")
	}
	for _, inc := range c.Booking.ExtensionIncrements {
		if inc <= 0 {
			return fmt.Errorf("extension increment %d is invalid", inc)
		}
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api keys configured")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderActor == "" {
		c.API.Auth.HeaderActor = "x-actor-id"
	}
	if c.API.Auth.HeaderRole == "" {
		c.API.Auth.HeaderRole = "x-actor-role"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.GranularityMinutes == 0 {
		c.Booking.GranularityMinutes = models.DefaultGranularityMinutes
	}
	if c.Booking.DefaultDurationMinutes == 0 {
		c.Booking.DefaultDurationMinutes = models.DefaultDiningDurationMinutes
	}
	if c.Booking.CutoffMinutes == 0 {
		c.Booking.CutoffMinutes = models.DefaultCutoffMinutes
	}
	if c.Booking.HorizonDays == 0 {
		c.Booking.HorizonDays = models.DefaultHorizonDays
	}
	if c.Booking.WarningMinutes == 0 {
		c.Booking.WarningMinutes = models.DefaultWarningMinutes
	}
	if c.Booking.SweepIntervalSeconds == 0 {
		c.Booking.SweepIntervalSeconds = 60
	}
	if len(c.Booking.ExtensionIncrements) == 0 {
		c.Booking.ExtensionIncrements = []int{30, 60}
	}
	if c.Booking.RecommendedMargin == 0 {
		c.Booking.RecommendedMargin = models.DefaultRecommendedMargin
	}
	if c.Booking.TightFitCovers == 0 {
		c.Booking.TightFitCovers = models.DefaultTightFitCovers
	}
	if c.Booking.HoldTTLSeconds == 0 {
		c.Booking.HoldTTLSeconds = models.DefaultHoldTTLSeconds
	}
}

// VenueFile is the shape of the standalone venue/resources YAML.
type VenueFile struct {
	Venue     models.Venue      `yaml:"venue"`
	Resources []models.Resource `yaml:"resources"`
}

// ValidateResources rejects duplicate or zero resource IDs up front.
func ValidateResources(resources []models.Resource) error {
	seen := make(map[int64]bool)
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource %q has invalid ID 0", r.Name)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		seen[r.ID] = true
		switch r.Kind {
		case models.KindTable, models.KindLane, models.KindTimeBlock:
		default:
			return fmt.Errorf("resource %q has unknown kind %q", r.Name, r.Kind)
		}
	}
	return nil
}
