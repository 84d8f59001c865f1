package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Engine     EngineConfig
	Restaurant RestaurantConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for hosted-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// LLMConfig configures the turn generator backend.
// BaseURL allows pointing at an OpenAI-compatible gateway.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// EngineConfig bounds the call session engine's failure handling.
//
// LockLease must exceed worst-case turn latency (generation + tool call)
// with margin; a crashed turn self-heals once the lease expires.
type EngineConfig struct {
	MaxConsecutiveErrors int
	LockLease            time.Duration
	GenerationRetries    int
	GenerationBackoff    time.Duration
	GenerationTimeout    time.Duration
	ToolTimeout          time.Duration

	// MaxActiveCalls caps simultaneous in-flight calls.
	// 0 disables the cap.
	MaxActiveCalls int
}

// RestaurantConfig carries operating hours and booking policy inputs.
// Consumed by the schedule/capacity policy, never read directly by tools.
type RestaurantConfig struct {
	Name     string
	Timezone string

	// OpenTime/CloseTime are HH:MM, applied to every weekday.
	OpenTime  string
	CloseTime string

	SlotGranularityMinutes   int
	LastSeatingOffsetMinutes int
	MinLeadTimeMinutes       int
	MaxHorizonDays           int

	MinPartySize int
	MaxPartySize int

	SlotDurationMinutes    int
	MaxReservationsPerSlot int
	MaxGuestsPerSlot       int

	// MenuFile optionally points at a JSON menu; empty uses the
	// built-in sample menu.
	MenuFile string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")

	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.Timeout = optDuration("LLM_TIMEOUT")

	c.Engine.MaxConsecutiveErrors = optInt("ENGINE_MAX_ERRORS")
	c.Engine.LockLease = optDuration("ENGINE_LOCK_LEASE")
	c.Engine.GenerationRetries = optInt("ENGINE_GENERATION_RETRIES")
	c.Engine.GenerationBackoff = optDuration("ENGINE_GENERATION_BACKOFF")
	c.Engine.GenerationTimeout = optDuration("ENGINE_GENERATION_TIMEOUT")
	c.Engine.ToolTimeout = optDuration("ENGINE_TOOL_TIMEOUT")
	c.Engine.MaxActiveCalls = optInt("ENGINE_MAX_ACTIVE_CALLS")

	c.Restaurant.Name = strings.TrimSpace(os.Getenv("RESTAURANT_NAME"))
	c.Restaurant.Timezone = strings.TrimSpace(os.Getenv("RESTAURANT_TIMEZONE"))
	c.Restaurant.OpenTime = strings.TrimSpace(os.Getenv("RESTAURANT_OPEN_TIME"))
	c.Restaurant.CloseTime = strings.TrimSpace(os.Getenv("RESTAURANT_CLOSE_TIME"))
	c.Restaurant.SlotGranularityMinutes = optInt("RESTAURANT_SLOT_GRANULARITY_MINUTES")
	c.Restaurant.LastSeatingOffsetMinutes = optInt("RESTAURANT_LAST_SEATING_OFFSET_MINUTES")
	c.Restaurant.MinLeadTimeMinutes = optInt("RESTAURANT_MIN_LEAD_TIME_MINUTES")
	c.Restaurant.MaxHorizonDays = optInt("RESTAURANT_MAX_HORIZON_DAYS")
	c.Restaurant.MinPartySize = optInt("RESTAURANT_MIN_PARTY_SIZE")
	c.Restaurant.MaxPartySize = optInt("RESTAURANT_MAX_PARTY_SIZE")
	c.Restaurant.SlotDurationMinutes = optInt("RESTAURANT_SLOT_DURATION_MINUTES")
	c.Restaurant.MaxReservationsPerSlot = optInt("RESTAURANT_MAX_RESERVATIONS_PER_SLOT")
	c.Restaurant.MaxGuestsPerSlot = optInt("RESTAURANT_MAX_GUESTS_PER_SLOT")
	c.Restaurant.MenuFile = strings.TrimSpace(os.Getenv("RESTAURANT_MENU_FILE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("LLM_MODEL is required"))
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 10 * time.Second
	}

	if c.Engine.MaxConsecutiveErrors <= 0 {
		c.Engine.MaxConsecutiveErrors = 3
	}
	if c.Engine.LockLease <= 0 {
		c.Engine.LockLease = 30 * time.Second
	}
	if c.Engine.GenerationRetries <= 0 {
		c.Engine.GenerationRetries = 2
	}
	if c.Engine.GenerationBackoff <= 0 {
		c.Engine.GenerationBackoff = 500 * time.Millisecond
	}
	if c.Engine.GenerationTimeout <= 0 {
		c.Engine.GenerationTimeout = c.LLM.Timeout
	}
	if c.Engine.ToolTimeout <= 0 {
		c.Engine.ToolTimeout = 5 * time.Second
	}
	if c.Engine.LockLease <= c.Engine.GenerationTimeout+c.Engine.ToolTimeout {
		errs = append(errs, errors.New("ENGINE_LOCK_LEASE must exceed generation timeout + tool timeout"))
	}
	if c.Engine.MaxActiveCalls < 0 {
		errs = append(errs, errors.New("ENGINE_MAX_ACTIVE_CALLS must be >= 0"))
	}

	if c.Restaurant.Name == "" {
		c.Restaurant.Name = "the restaurant"
	}
	if c.Restaurant.Timezone == "" {
		errs = append(errs, errors.New("RESTAURANT_TIMEZONE is required"))
	} else if _, err := time.LoadLocation(c.Restaurant.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("RESTAURANT_TIMEZONE is not a valid IANA zone: %q", c.Restaurant.Timezone))
	}
	if c.Restaurant.OpenTime == "" {
		c.Restaurant.OpenTime = "11:00"
	}
	if c.Restaurant.CloseTime == "" {
		c.Restaurant.CloseTime = "22:00"
	}
	for _, v := range []string{c.Restaurant.OpenTime, c.Restaurant.CloseTime} {
		if _, err := time.Parse("15:04", v); err != nil {
			errs = append(errs, fmt.Errorf("restaurant hours must be HH:MM, got %q", v))
		}
	}
	if c.Restaurant.SlotGranularityMinutes <= 0 {
		c.Restaurant.SlotGranularityMinutes = 30
	}
	if c.Restaurant.LastSeatingOffsetMinutes <= 0 {
		c.Restaurant.LastSeatingOffsetMinutes = 90
	}
	if c.Restaurant.MinLeadTimeMinutes <= 0 {
		c.Restaurant.MinLeadTimeMinutes = 60
	}
	if c.Restaurant.MaxHorizonDays <= 0 {
		c.Restaurant.MaxHorizonDays = 60
	}
	if c.Restaurant.MinPartySize <= 0 {
		c.Restaurant.MinPartySize = 1
	}
	if c.Restaurant.MaxPartySize <= 0 {
		c.Restaurant.MaxPartySize = 12
	}
	if c.Restaurant.MaxPartySize < c.Restaurant.MinPartySize {
		errs = append(errs, errors.New("RESTAURANT_MAX_PARTY_SIZE must be >= RESTAURANT_MIN_PARTY_SIZE"))
	}
	if c.Restaurant.SlotDurationMinutes <= 0 {
		c.Restaurant.SlotDurationMinutes = 120
	}
	if c.Restaurant.MaxReservationsPerSlot <= 0 {
		c.Restaurant.MaxReservationsPerSlot = 15
	}
	if c.Restaurant.MaxGuestsPerSlot <= 0 {
		c.Restaurant.MaxGuestsPerSlot = 120
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
