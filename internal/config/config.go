package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
	BackendMock   = "mock"

	EnvLocal      = "local"
	EnvProduction = "production"
)

type Config struct {
	AppEnv      string
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	JWTSecret   string

	LLMBackend         string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiPremiumModel string
	GCPProject         string
	GCPLocation        string
	GenAIBaseURL       string
	LLMTimeout         time.Duration

	TelegramBotToken string
	StaticDir        string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// Load reads the configuration from the environment, after loading a .env
// file if one exists. Variables already set in the environment win.
func Load() Config {
	loaded := godotenv.Load() == nil

	return Config{
		AppEnv:      strings.ToLower(getEnv("APP_ENV", EnvLocal)),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mindhelper.db"),
		LogLevel:    strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		LLMBackend:         strings.ToLower(getEnv("LLM_BACKEND", BackendGemini)),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", ""),
		GeminiPremiumModel: getEnv("GEMINI_PREMIUM_MODEL", ""),
		GCPProject:         getEnv("GCP_PROJECT", ""),
		GCPLocation:        getEnv("GCP_LOCATION", "us-central1"),
		GenAIBaseURL:       getEnv("GENAI_BASE_URL", ""),
		LLMTimeout:         time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 0)) * time.Second,

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		StaticDir:        getEnv("STATIC_DIR", ""),

		EnvFileLoaded: loaded,
	}
}

func (c Config) IsLocal() bool {
	return c.AppEnv == EnvLocal
}

// Validate reports every problem at once. A missing Gemini API key is not
// an error: chat requests fail per call instead.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT must not be empty"))
	} else if port, err := strconv.Atoi(c.HTTPPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %q is not a valid port", c.HTTPPort))
	}
	switch c.LLMBackend {
	case BackendGemini, BackendMock:
	case BackendVertex:
		if c.GCPProject == "" && c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("LLM_BACKEND=vertex requires GCP_PROJECT or GEMINI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_BACKEND %q is not one of gemini, vertex, mock", c.LLMBackend))
	}
	if c.LLMTimeout < 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT_SECONDS must not be negative"))
	}
	if !c.IsLocal() && c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required outside the local environment"))
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
