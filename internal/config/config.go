package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Git      GitConfig      `mapstructure:"git"`
	Executor ExecutorConfig `mapstructure:"executor" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0"`
	BcryptCost                  int    `mapstructure:"bcrypt_cost" validate:"gte=0,lte=31"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// GitConfig contains settings for git hosting integration. The token is
// optional: without it, git-operation tasks are rejected as unsupported.
type GitConfig struct {
	GitHubToken string `mapstructure:"github_token"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email" validate:"omitempty,email"`
	WorkDir     string `mapstructure:"work_dir"`
}

// ExecutorConfig contains settings for the background task executor.
type ExecutorConfig struct {
	WorkerCount            int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize              int `mapstructure:"queue_size" validate:"required,gt=0"`
	MaxRetries             int `mapstructure:"max_retries" validate:"gte=0"`
	BackoffBaseSeconds     int `mapstructure:"backoff_base_seconds" validate:"gt=0"`
	InvokeTimeoutSeconds   int `mapstructure:"invoke_timeout_seconds" validate:"gt=0"`
	StuckTaskAgeMinutes    int `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	StuckCheckEveryMinutes int `mapstructure:"stuck_check_every_minutes" validate:"gt=0"`
}
