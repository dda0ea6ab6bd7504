package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Credential CredentialConfig `mapstructure:"credential"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// MailboxConfig selects and configures the mailbox provider
type MailboxConfig struct {
	Provider     string `mapstructure:"provider"`
	UserEmail    string `mapstructure:"user_email"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
	IMAPMailbox  string `mapstructure:"imap_mailbox"`
	PageSize     int64  `mapstructure:"page_size"`
}

// CredentialConfig controls where OAuth tokens are persisted
type CredentialConfig struct {
	ServiceName  string   `mapstructure:"service_name"`
	FileDir      string   `mapstructure:"file_dir"`
	FilePassword string   `mapstructure:"file_password"`
	Backends     []string `mapstructure:"backends"`
}

// SchedulerConfig holds the poll interval of every loop
type SchedulerConfig struct {
	FetchInterval   time.Duration `mapstructure:"fetch_interval"`
	RulesInterval   time.Duration `mapstructure:"rules_interval"`
	ActionsInterval time.Duration `mapstructure:"actions_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
}

// RulesConfig locates the ruleset file
type RulesConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"

	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "rulemate.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("mailbox.provider", ProviderGmail)
	v.SetDefault("mailbox.user_email", "me")
	v.SetDefault("mailbox.imap_host", "imap.gmail.com")
	v.SetDefault("mailbox.imap_port", 993)
	v.SetDefault("mailbox.imap_mailbox", "INBOX")
	v.SetDefault("mailbox.page_size", 300)

	v.SetDefault("credential.service_name", "rulemate")
	v.SetDefault("credential.file_dir", "~/.config/rulemate/credentials")
	v.SetDefault("credential.file_password", "rulemate-file-key")
	v.SetDefault("credential.backends", []string{"keychain", "secret-service", "wincred", "file"})

	v.SetDefault("scheduler.fetch_interval", "20s")
	v.SetDefault("scheduler.rules_interval", "20s")
	v.SetDefault("scheduler.actions_interval", "5s")
	v.SetDefault("scheduler.max_retries", 3)

	v.SetDefault("rules.path", "rules.json")
	v.SetDefault("rules.watch", false)

	v.SetDefault("log.level", "info")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.enabled", "SERVER_ENABLED")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Mailbox
	v.BindEnv("mailbox.provider", "MAILBOX_PROVIDER")
	v.BindEnv("mailbox.user_email", "GMAIL_USER_EMAIL")
	v.BindEnv("mailbox.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("mailbox.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("mailbox.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("mailbox.imap_host", "IMAP_HOST")
	v.BindEnv("mailbox.imap_port", "IMAP_PORT")
	v.BindEnv("mailbox.imap_user", "IMAP_USER")
	v.BindEnv("mailbox.imap_password", "IMAP_PASSWORD")
	v.BindEnv("mailbox.imap_mailbox", "IMAP_MAILBOX")
	v.BindEnv("mailbox.page_size", "MAILBOX_PAGE_SIZE")

	// Credential
	v.BindEnv("credential.service_name", "CREDENTIAL_SERVICE_NAME")
	v.BindEnv("credential.file_dir", "CREDENTIAL_FILE_DIR")
	v.BindEnv("credential.file_password", "CREDENTIAL_FILE_PASSWORD")

	// Scheduler
	v.BindEnv("scheduler.fetch_interval", "SCHEDULER_FETCH_INTERVAL")
	v.BindEnv("scheduler.rules_interval", "SCHEDULER_RULES_INTERVAL")
	v.BindEnv("scheduler.actions_interval", "SCHEDULER_ACTIONS_INTERVAL")
	v.BindEnv("scheduler.max_retries", "SCHEDULER_MAX_RETRIES")

	// Rules
	v.BindEnv("rules.path", "RULES_PATH")
	v.BindEnv("rules.watch", "RULES_WATCH")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverMySQL {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
	return c.Path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Enabled && c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Mailbox.Provider {
	case ProviderGmail:
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" {
			return fmt.Errorf("Gmail OAuth2 client credentials are required")
		}
	case ProviderIMAP:
		if c.Mailbox.IMAPUser == "" || c.Mailbox.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	default:
		return fmt.Errorf("unsupported mailbox provider %q", c.Mailbox.Provider)
	}

	if c.Scheduler.FetchInterval <= 0 || c.Scheduler.RulesInterval <= 0 || c.Scheduler.ActionsInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}
	if c.Scheduler.MaxRetries <= 0 {
		return fmt.Errorf("scheduler max_retries must be greater than 0")
	}

	if c.Rules.Path == "" {
		return fmt.Errorf("rules path is required")
	}

	return nil
}
