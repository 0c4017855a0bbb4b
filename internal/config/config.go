package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for both binaries.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Discord   DiscordConfig
	Tickets   TicketsConfig
	Sink      SinkConfig
	Snowflake SnowflakeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	ProbePort             string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	SlowQuery      time.Duration
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	PoolSize    int
	DialTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines the shared secret used for service tokens between
// the bot and the transcript API.
type AuthConfig struct {
	JWTSecret              string
	ServiceTokenTTLMinutes int
	ServiceName            string
}

// DiscordConfig holds the chat platform credentials and the role and
// channel IDs the bot relies on.
type DiscordConfig struct {
	Token               string
	GuildID             string
	StaffRoleIDs        []string
	AdminRoleIDs        []string
	ManagerRoleIDs      []string
	CarrierRoleIDs      []string
	PriorityChannelID   string
	ApprovalChannelID   string
	FeedbackChannelID   string
	TranscriptChannelID string
	CarrierLogChannelID string
	RegisterCommands    bool
}

// TicketsConfig tunes the ticket lifecycle.
type TicketsConfig struct {
	ActiveCategories []string
	DeleteGrace      time.Duration
	FeedbackExpiry   time.Duration
	HelpCooldown     time.Duration
	DataDir          string
}

// SinkConfig points the bot at the transcript API.
type SinkConfig struct {
	BaseURL      string
	Timeout      time.Duration
	FallbackFile string
}

// SnowflakeConfig selects the node used to mint pending-carry IDs.
type SnowflakeConfig struct {
	NodeID int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	nodeID := int64(getEnvAsInt("SNOWFLAKE_NODE_ID", 1))
	if nodeID < 0 || nodeID > 1023 {
		return nil, fmt.Errorf("invalid SNOWFLAKE_NODE_ID: %d", nodeID)
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "carry-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			ProbePort:             getEnv("APP_PROBE_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			SlowQuery:      getEnvAsDuration("POSTGRES_SLOW_QUERY", 500*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:        os.Getenv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			Prefix:      getEnv("REDIS_PREFIX", "carrydesk:"),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			ServiceTokenTTLMinutes: getEnvAsInt("AUTH_SERVICE_TOKEN_TTL_MINUTES", 5),
			ServiceName:            getEnv("AUTH_SERVICE_NAME", "carry-desk-bot"),
		},
		Discord: DiscordConfig{
			Token:               os.Getenv("DISCORD_TOKEN"),
			GuildID:             os.Getenv("DISCORD_GUILD_ID"),
			StaffRoleIDs:        getEnvAsList("DISCORD_STAFF_ROLE_IDS", nil),
			AdminRoleIDs:        getEnvAsList("DISCORD_ADMIN_ROLE_IDS", nil),
			ManagerRoleIDs:      getEnvAsList("DISCORD_MANAGER_ROLE_IDS", nil),
			CarrierRoleIDs:      getEnvAsList("DISCORD_CARRIER_ROLE_IDS", nil),
			PriorityChannelID:   os.Getenv("DISCORD_PRIORITY_CHANNEL_ID"),
			ApprovalChannelID:   os.Getenv("DISCORD_APPROVAL_CHANNEL_ID"),
			FeedbackChannelID:   os.Getenv("DISCORD_FEEDBACK_CHANNEL_ID"),
			TranscriptChannelID: os.Getenv("DISCORD_TRANSCRIPT_CHANNEL_ID"),
			CarrierLogChannelID: os.Getenv("DISCORD_CARRIER_LOG_CHANNEL_ID"),
			RegisterCommands:    getEnvAsBool("DISCORD_REGISTER_COMMANDS", true),
		},
		Tickets: TicketsConfig{
			ActiveCategories: getEnvAsList("TICKET_ACTIVE_CATEGORIES", []string{"Dungeon Carry", "Slayer Carry"}),
			DeleteGrace:      getEnvAsDuration("TICKET_DELETE_GRACE", 5*time.Second),
			FeedbackExpiry:   getEnvAsDuration("TICKET_FEEDBACK_EXPIRY", 24*time.Hour),
			HelpCooldown:     getEnvAsDuration("TICKET_HELP_COOLDOWN", 2*time.Hour),
			DataDir:          dataDir,
		},
		Sink: SinkConfig{
			BaseURL:      getEnv("TRANSCRIPT_API_URL", "http://localhost:8000"),
			Timeout:      getEnvAsDuration("TRANSCRIPT_API_TIMEOUT", 10*time.Second),
			FallbackFile: getEnv("TRANSCRIPT_FALLBACK_FILE", dataDir+"/web_transcripts.json"),
		},
		Snowflake: SnowflakeConfig{
			NodeID: nodeID,
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// Validate reports the settings the bot cannot start without.
func (d DiscordConfig) Validate() error {
	var missing []string
	if d.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if d.GuildID == "" {
		missing = append(missing, "DISCORD_GUILD_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ProbeAddr returns the bind address of the bot's health and metrics
// listener.
func (a AppConfig) ProbeAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.ProbePort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ServiceTokenTTL returns the lifetime of bot-issued service tokens.
func (a AuthConfig) ServiceTokenTTL() time.Duration {
	if a.ServiceTokenTTLMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.ServiceTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
