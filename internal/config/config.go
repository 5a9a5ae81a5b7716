package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Trello    TrelloConfig    `mapstructure:"trello"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig holds database connection configuration.
// The database only keeps audit history; it is optional.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds mailbox access configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
	IMAPMailbox  string `mapstructure:"imap_mailbox"`
}

// MailboxConfig controls the recency predicate sent to the mailbox
type MailboxConfig struct {
	QueryMode string `mapstructure:"query_mode"`
	BaseQuery string `mapstructure:"base_query"`
	Window    string `mapstructure:"window"`
	Timezone  string `mapstructure:"timezone"`
}

// LLMConfig holds completion service configuration
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Mode           string        `mapstructure:"mode"`
	PromptTemplate string        `mapstructure:"prompt_template"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// TrelloConfig holds board service configuration
type TrelloConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Key     string `mapstructure:"key"`
	Token   string `mapstructure:"token"`
	ListID  string `mapstructure:"list_id"`
}

// PipelineConfig holds the per-pass settings
type PipelineConfig struct {
	DelaySeconds int    `mapstructure:"delay_seconds"`
	MaxMessages  int    `mapstructure:"max_messages"`
	StagingDir   string `mapstructure:"staging_dir"`
}

// SchedulerConfig holds repeating mode configuration
type SchedulerConfig struct {
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Cron            string `mapstructure:"cron"`
	AutoStart       bool   `mapstructure:"auto_start"`
}

// Query modes understood by the mailbox reader
const (
	QueryModeNewerThan     = "newer_than"
	QueryModeSinceMidnight = "since_midnight"
)

// Classifier modes
const (
	LLMModeExtract = "extract"
	LLMModeBoolean = "boolean"
)

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "10m")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("gmail.user_email", "me")
	viper.SetDefault("gmail.use_imap", false)
	viper.SetDefault("gmail.imap_host", "imap.gmail.com")
	viper.SetDefault("gmail.imap_port", 993)
	viper.SetDefault("gmail.imap_mailbox", "INBOX")

	viper.SetDefault("mailbox.query_mode", QueryModeNewerThan)
	viper.SetDefault("mailbox.base_query", "in:inbox")
	viper.SetDefault("mailbox.window", "1d")
	viper.SetDefault("mailbox.timezone", "Local")

	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.1-8b-instant")
	viper.SetDefault("llm.mode", LLMModeExtract)
	viper.SetDefault("llm.timeout", "60s")

	viper.SetDefault("trello.base_url", "https://api.trello.com/1")

	viper.SetDefault("pipeline.delay_seconds", 30)
	viper.SetDefault("pipeline.max_messages", 10)
	viper.SetDefault("pipeline.staging_dir", "data/projects")

	viper.SetDefault("scheduler.interval_minutes", 15)
	viper.SetDefault("scheduler.auto_start", false)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("log.level", "LOG_LEVEL")

	// Database
	viper.BindEnv("database.enabled", "DB_ENABLED")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	viper.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	viper.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	viper.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	viper.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	viper.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// Mailbox
	viper.BindEnv("mailbox.query_mode", "MAILBOX_QUERY_MODE")
	viper.BindEnv("mailbox.timezone", "MAILBOX_TIMEZONE")

	// LLM
	viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	viper.BindEnv("llm.api_key", "LLM_API_KEY", "GROQ_API_KEY")
	viper.BindEnv("llm.model", "LLM_MODEL")
	viper.BindEnv("llm.mode", "LLM_MODE")

	// Trello
	viper.BindEnv("trello.key", "TRELLO_KEY")
	viper.BindEnv("trello.token", "TRELLO_TOKEN")
	viper.BindEnv("trello.list_id", "TRELLO_LIST_ID")

	// Pipeline and scheduler
	viper.BindEnv("pipeline.delay_seconds", "PIPELINE_DELAY_SECONDS")
	viper.BindEnv("pipeline.max_messages", "PIPELINE_MAX_MESSAGES")
	viper.BindEnv("pipeline.staging_dir", "PIPELINE_STAGING_DIR")
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.cron", "SCHEDULER_CRON")
	viper.BindEnv("scheduler.auto_start", "SCHEDULER_AUTO_START")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Location resolves the configured timezone, "Local" or empty meaning the process zone
func (c *MailboxConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	}

	if !c.Gmail.UseIMAP {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" {
			return fmt.Errorf("Gmail OAuth2 client credentials are required when not using IMAP")
		}
	} else {
		if c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	switch c.Mailbox.QueryMode {
	case QueryModeNewerThan, QueryModeSinceMidnight:
	default:
		return fmt.Errorf("unknown mailbox query mode %q", c.Mailbox.QueryMode)
	}
	if _, err := c.Mailbox.Location(); err != nil {
		return err
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Mode != LLMModeExtract && c.LLM.Mode != LLMModeBoolean {
		return fmt.Errorf("unknown LLM mode %q", c.LLM.Mode)
	}

	var missing []string
	if c.Trello.Key == "" {
		missing = append(missing, "TRELLO_KEY")
	}
	if c.Trello.Token == "" {
		missing = append(missing, "TRELLO_TOKEN")
	}
	if c.Trello.ListID == "" {
		missing = append(missing, "TRELLO_LIST_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required Trello settings: %v", missing)
	}

	if c.Pipeline.DelaySeconds < 5 || c.Pipeline.DelaySeconds > 300 {
		return fmt.Errorf("pipeline delay must be between 5 and 300 seconds")
	}
	if c.Pipeline.MaxMessages < 1 || c.Pipeline.MaxMessages > 100 {
		return fmt.Errorf("pipeline max messages must be between 1 and 100")
	}
	if c.Pipeline.StagingDir == "" {
		return fmt.Errorf("pipeline staging dir is required")
	}

	if c.Scheduler.IntervalMinutes < 1 || c.Scheduler.IntervalMinutes > 180 {
		return fmt.Errorf("scheduler interval must be between 1 and 180 minutes")
	}

	return nil
}
