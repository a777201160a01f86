// Package config loads the runtime settings of the lead agent.
//
// Values come from an optional JSON file first, then environment variables
// (a .env file in the working directory is honored) override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type LLMConfig struct {
	APIKey    string   `json:"api_key" validate:"required"`
	BaseURL   string   `json:"base_url" validate:"omitempty,url"`
	Model     string   `json:"model" validate:"required"`
	MaxTokens int      `json:"max_tokens" validate:"gte=0"`
	Timeout   Duration `json:"timeout" validate:"gte=0"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db" validate:"gte=0"`
}

type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	RefreshToken string `json:"refresh_token"`
	CalendarID   string `json:"calendar_id"`
	TimeZone     string `json:"time_zone"`
}

// Enabled reports whether enough credentials are present to talk to Google.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != ""
}

type PipefyConfig struct {
	APIToken string `json:"api_token"`
	PipeID   string `json:"pipe_id" validate:"required_with=APIToken"`
	URL      string `json:"url" validate:"omitempty,url"`
}

func (p PipefyConfig) Enabled() bool {
	return p.APIToken != ""
}

type AgentConfig struct {
	CompanyName    string `json:"company_name" validate:"required"`
	DaysAhead      int    `json:"days_ahead" validate:"gte=1,lte=60"`
	ExtractWithLLM bool   `json:"extract_with_llm"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr"`
	RequestTimeout Duration `json:"request_timeout" validate:"gte=0"`
	RateLimit      float64  `json:"rate_limit" validate:"gte=0"`
	RateBurst      int      `json:"rate_burst" validate:"gte=0"`
}

type Config struct {
	Env    string       `json:"env" validate:"oneof=development production"`
	LLM    LLMConfig    `json:"llm"`
	Redis  RedisConfig  `json:"redis"`
	Google GoogleConfig `json:"google"`
	Pipefy PipefyConfig `json:"pipefy"`
	Agent  AgentConfig  `json:"agent"`
	HTTP   HTTPConfig   `json:"http"`
}

// Default returns the settings used when neither the file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Env: EnvDevelopment,
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: Duration(60 * time.Second),
		},
		Google: GoogleConfig{
			CalendarID: "primary",
			TimeZone:   "America/Sao_Paulo",
		},
		Agent: AgentConfig{
			CompanyName: "Verzel",
			DaysAhead:   7,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RequestTimeout: Duration(90 * time.Second),
			RateLimit:      1,
			RateBurst:      5,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	conf := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := sonic.Unmarshal(file, conf); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := conf.applyEnv(); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = strings.ToLower(getEnv("APP_ENV", c.Env))

	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Google.ClientID = getEnv("GOOGLE_CALENDAR_CLIENT_ID", c.Google.ClientID)
	c.Google.ClientSecret = getEnv("GOOGLE_CALENDAR_CLIENT_SECRET", c.Google.ClientSecret)
	c.Google.RedirectURL = getEnv("GOOGLE_CALENDAR_REDIRECT_URI", c.Google.RedirectURL)
	c.Google.RefreshToken = getEnv("GOOGLE_CALENDAR_REFRESH_TOKEN", c.Google.RefreshToken)
	c.Google.CalendarID = getEnv("GOOGLE_CALENDAR_ID", c.Google.CalendarID)

	c.Pipefy.APIToken = getEnv("PIPEFY_API_TOKEN", c.Pipefy.APIToken)
	c.Pipefy.PipeID = getEnv("PIPEFY_PIPE_ID", c.Pipefy.PipeID)
	c.Pipefy.URL = getEnv("PIPEFY_API_URL", c.Pipefy.URL)

	c.Agent.CompanyName = getEnv("COMPANY_NAME", c.Agent.CompanyName)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	var err error
	if c.LLM.MaxTokens, err = envInt("OPENAI_MAX_TOKENS", c.LLM.MaxTokens); err != nil {
		return err
	}
	if c.Redis.DB, err = envInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Agent.DaysAhead, err = envInt("AGENT_DAYS_AHEAD", c.Agent.DaysAhead); err != nil {
		return err
	}
	if c.Agent.ExtractWithLLM, err = envBool("AGENT_EXTRACT_WITH_LLM", c.Agent.ExtractWithLLM); err != nil {
		return err
	}
	if c.HTTP.RequestTimeout, err = envDuration("HTTP_REQUEST_TIMEOUT", c.HTTP.RequestTimeout); err != nil {
		return err
	}
	if c.LLM.Timeout, err = envDuration("OPENAI_TIMEOUT", c.LLM.Timeout); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback Duration) (Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return Duration(v), nil
}
