package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	LLM      LLMConfig
	SMTP     SMTPConfig
	Parser   ParserConfig
	Extract  ExtractConfig
	Render   RenderConfig
}

// DatabaseConfig holds the optional job-audit database configuration.
// An empty DSN disables the audit table.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	MaxUploadMB    int
	RequestTimeout time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider       string // gemini | openai | vertex
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	Timeout        time.Duration // per attempt
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	PromptVersion  string
	VertexProject  string
	VertexLocation string
	VertexCredFile string
}

// SMTPConfig holds email delivery configuration. The observed deployment used an
// implicit-TLS submission port.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	Timeout     time.Duration // per send
	Concurrency int
}

// ParserConfig controls how out-of-range structured fields are handled.
type ParserConfig struct {
	OutOfRangePolicy string // drop-field | fallback
}

// ExtractConfig selects the PDF text extraction backend.
type ExtractConfig struct {
	Backend   string // pdf | pdftotext
	Pdftotext string

	// OCR of pages without a text layer; off unless EXTRACT_OCR is set.
	OCR         bool
	Pdftoppm    string
	Tesseract   string
	OCRLang     string
	TessdataDir string
	OCRDPI      int
	OCRMaxPages int
}

// RenderConfig controls the report PDF.
type RenderConfig struct {
	PageSize    string // Letter | A4 | Legal
	PageNumbers bool
}

// LoadConfig loads .env (when present) and then configuration from environment variables.
func LoadConfig() *Config {
	// a missing .env is fine
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "gemini"))
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":9090"),
			MaxUploadMB:    getEnvAsInt("MAX_UPLOAD_MB", 25),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Minute),
		},
		LLM: LLMConfig{
			Provider:       provider,
			Model:          getEnv("LLM_MODEL", defaultModel(provider)),
			APIKey:         getEnv("LLM_API_KEY", providerKey(provider)),
			BaseURL:        getEnv("LLM_BASE_URL", ""),
			Temperature:    getEnvAsFloat32("LLM_TEMPERATURE", 0.2),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 90*time.Second),
			MaxAttempts:    getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			BaseBackoff:    getEnvAsDuration("LLM_BASE_BACKOFF", time.Second),
			MaxBackoff:     getEnvAsDuration("LLM_MAX_BACKOFF", 10*time.Second),
			PromptVersion:  getEnv("PROMPT_VERSION", "narrative-v1"),
			VertexProject:  getEnv("VERTEX_PROJECT", ""),
			VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
			VertexCredFile: getEnv("VERTEX_CREDENTIALS_FILE", ""),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        getEnvAsInt("SMTP_PORT", 465),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			From:        getEnv("SMTP_FROM", getEnv("SMTP_USERNAME", "")),
			Timeout:     getEnvAsDuration("SMTP_TIMEOUT", 30*time.Second),
			Concurrency: getEnvAsInt("SMTP_CONCURRENCY", 4),
		},
		Parser: ParserConfig{
			OutOfRangePolicy: getEnv("PARSER_OUT_OF_RANGE_POLICY", "drop-field"),
		},
		Extract: ExtractConfig{
			Backend:   getEnv("EXTRACTOR", "pdf"),
			Pdftotext: getEnv("PDFTOTEXT_BIN", "pdftotext"),

			OCR:         getEnvAsBool("EXTRACT_OCR", false),
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			OCRLang:     getEnv("TESSERACT_LANG", "eng"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			OCRDPI:      getEnvAsInt("OCR_DPI", 300),
			OCRMaxPages: getEnvAsInt("OCR_MAX_PAGES", 50),
		},
		Render: RenderConfig{
			PageSize:    getEnv("RENDER_PAGE_SIZE", "Letter"),
			PageNumbers: getEnvAsBool("RENDER_PAGE_NUMBERS", true),
		},
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	default:
		return "gemini-1.5-flash"
	}
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(CodeConfig, "an API key for provider "+c.LLM.Provider+" is required (LLM_API_KEY)", ErrInvalidInput)
		}
	case "vertex":
		if c.LLM.VertexProject == "" {
			return NewAppError(CodeConfig, "VERTEX_PROJECT is required for provider vertex", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "unknown LLM_PROVIDER "+c.LLM.Provider, ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 1 {
		return NewAppError(CodeConfig, "LLM_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	v := NewValidator().
		Field("PARSER_OUT_OF_RANGE_POLICY", c.Parser.OutOfRangePolicy, OneOf("drop-field", "fallback")).
		Field("EXTRACTOR", c.Extract.Backend, OneOf("pdf", "pdftotext")).
		Field("RENDER_PAGE_SIZE", c.Render.PageSize, OneOf("Letter", "A4", "Legal"))
	if v.HasErrors() {
		return NewAppError(CodeConfig, UserMessage(v.Err()), ErrInvalidInput)
	}
	return nil
}

// ValidateSMTP checks the settings email delivery needs. It is separate from
// Validate because delivery is optional.
func (c *Config) ValidateSMTP() error {
	if c.SMTP.Host == "" || c.SMTP.Port <= 0 {
		return NewAppError(CodeConfig, "SMTP_HOST and SMTP_PORT are required for email delivery", ErrInvalidInput)
	}
	if c.SMTP.From == "" || c.SMTP.Password == "" {
		return NewAppError(CodeConfig, "SMTP_FROM (or SMTP_USERNAME) and SMTP_PASSWORD are required for email delivery", ErrInvalidInput)
	}
	return nil
}
