package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"post-planner/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App       App       `json:"app"`
	Store     Store     `json:"store"`
	Pending   Pending   `json:"pending"`
	Scheduler Scheduler `json:"scheduler"`
	OAuth     OAuth     `json:"oauth"`
	Cors      Cors      `json:"cors"`
	RateLimit RateLimit `json:"rateLimit"`
	Logger    Logger    `json:"logger"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	BaseURL     string `json:"baseURL"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
}

// Store selects where posts, credentials and client registrations live.
// Driver "file" (default) keeps everything in JSON documents; "postgres" moves
// posts into PostgreSQL while credentials stay on disk.
type Store struct {
	Driver      string `json:"driver"`
	PostsFile   string `json:"postsFile"`
	AuthFile    string `json:"authFile"`
	ClientsFile string `json:"clientsFile"`
	Postgres    Db     `json:"postgres"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

// Pending configures the store of in-progress authorization states.
type Pending struct {
	Driver     string      `json:"driver"` // memory | redis
	TTLSeconds int         `json:"ttlSeconds"`
	Redis      RedisClient `json:"redis"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	Database int    `json:"database"`
}

type Scheduler struct {
	IntervalSeconds       int  `json:"intervalSeconds"`
	PublishTimeoutSeconds int  `json:"publishTimeoutSeconds"`
	RecoverStuck          bool `json:"recoverStuck"`
}

// OAuth describes the app this service registers on remote instances.
type OAuth struct {
	AppName        string `json:"appName"`
	Website        string `json:"website"`
	Scopes         string `json:"scopes"`
	RedirectURI    string `json:"redirectURI"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type Cors struct {
	AllowOrigins []string `json:"allowOrigins"`
}

type RateLimit struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"windowSeconds"`
	Burst         int `json:"burst"`
}

type Logger struct {
	Format string `json:"format"`
}

var C Config

func init() {
	C = Load()
}

// Load reads config.json (or config-$ENV.json), applies defaults and then lets
// environment variables override individual settings.
func Load() Config {
	var cfg Config
	name := getConfig()
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(name)
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("../../")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().WithField("config", name).Warn("Config file not found, using defaults")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
	initApp(&cfg)
	initStore(&cfg)
	initPending(&cfg)
	initScheduler(&cfg)
	initOAuth(&cfg)
	logger.GetLogger().WithFields(map[string]interface{}{
		"config":      name,
		"storeDriver": cfg.Store.Driver,
		"pending":     cfg.Pending.Driver,
		"interval":    cfg.Scheduler.IntervalSeconds,
	}).Info("Config set up successfully")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 10001)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.postsFile", "data/posts.json")
	v.SetDefault("store.authFile", "data/auth.json")
	v.SetDefault("store.clientsFile", "data/clients.json")
	v.SetDefault("store.postgres.sslMode", "disable")
	v.SetDefault("pending.driver", "memory")
	v.SetDefault("pending.ttlSeconds", 600)
	v.SetDefault("scheduler.intervalSeconds", 20)
	v.SetDefault("scheduler.publishTimeoutSeconds", 15)
	v.SetDefault("scheduler.recoverStuck", true)
	v.SetDefault("oauth.appName", "Post Planner")
	v.SetDefault("oauth.scopes", "read write")
	v.SetDefault("oauth.timeoutSeconds", 5)
	v.SetDefault("rateLimit.requests", 30)
	v.SetDefault("rateLimit.windowSeconds", 60)
	v.SetDefault("rateLimit.burst", 10)
	v.SetDefault("logger.format", "json")
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initApp(c *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	}
	if c.App.Port == 0 {
		c.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			c.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			c.App.TLSEnabled = false
		}
	}
	if c.App.TLSCertFile == "" {
		c.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if c.App.TLSKeyFile == "" {
		c.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		c.App.BaseURL = v
	}
	if c.App.BaseURL == "" {
		scheme := "http"
		if c.App.TLSEnabled {
			scheme = "https"
		}
		c.App.BaseURL = fmt.Sprintf("%s://localhost:%d", scheme, c.App.Port)
	}
	c.App.BaseURL = strings.TrimRight(c.App.BaseURL, "/")
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		c.Cors.AllowOrigins = splitList(v)
	}
	c.Logger.Format = getConfigValue(c.Logger.Format, "LOG_FORMAT", "json")
}

func initStore(c *Config) {
	c.Store.Driver = getConfigValue(c.Store.Driver, "STORE_DRIVER", "file")
	c.Store.PostsFile = getConfigValue(c.Store.PostsFile, "POSTS_FILE", "data/posts.json")
	c.Store.AuthFile = getConfigValue(c.Store.AuthFile, "AUTH_FILE", "data/auth.json")
	c.Store.ClientsFile = getConfigValue(c.Store.ClientsFile, "CLIENTS_FILE", "data/clients.json")

	pg := &c.Store.Postgres
	pg.Name = getConfigValue(pg.Name, "DB_NAME", pg.Name)
	pg.Host = getConfigValue(pg.Host, "DB_HOST", "localhost")
	pg.Port = getConfigValue(pg.Port, "DB_PORT", "5432")
	pg.User = getConfigValue(pg.User, "DB_USER", pg.User)
	pg.Password = getConfigValue(pg.Password, "DB_PASSWORD", pg.Password)
	pg.SSLMode = getConfigValue(pg.SSLMode, "DB_SSLMODE", "disable")
}

func initPending(c *Config) {
	c.Pending.Driver = getConfigValue(c.Pending.Driver, "PENDING_DRIVER", "memory")
	if c.Pending.TTLSeconds <= 0 {
		c.Pending.TTLSeconds = 600
	}
	r := &c.Pending.Redis
	r.Host = getConfigValue(r.Host, "REDIS_HOST", "localhost")
	r.Port = getConfigValue(r.Port, "REDIS_PORT", "6379")
	r.Password = getConfigValue(r.Password, "REDIS_PASSWORD", r.Password)
	r.Username = getConfigValue(r.Username, "REDIS_USERNAME", r.Username)
}

func initScheduler(c *Config) {
	if v := os.Getenv("SCHEDULER_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.IntervalSeconds = n
		}
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		c.Scheduler.IntervalSeconds = 20
	}
	if c.Scheduler.PublishTimeoutSeconds <= 0 {
		c.Scheduler.PublishTimeoutSeconds = 15
	}
}

func initOAuth(c *Config) {
	c.OAuth.RedirectURI = getConfigValue(c.OAuth.RedirectURI, "OAUTH_REDIRECT_URI", c.App.BaseURL+"/auth/callback")
	if c.App.TLSEnabled && !hasHTTPS(c.OAuth.RedirectURI) {
		c.OAuth.RedirectURI = toHTTPSCallback(c.OAuth.RedirectURI)
	}
	if c.OAuth.Website == "" {
		c.OAuth.Website = c.App.BaseURL
	}
	if c.OAuth.TimeoutSeconds <= 0 {
		c.OAuth.TimeoutSeconds = 5
	}
	if c.OAuth.Scopes == "" {
		c.OAuth.Scopes = "read write"
	}
}

// SchedulerInterval returns the scheduler tick as a duration.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// PublishTimeout bounds a single status publish call.
func (c Config) PublishTimeout() time.Duration {
	return time.Duration(c.Scheduler.PublishTimeoutSeconds) * time.Second
}

// OAuthTimeout bounds every outbound call of the authorization flow.
func (c Config) OAuthTimeout() time.Duration {
	return time.Duration(c.OAuth.TimeoutSeconds) * time.Second
}

// getConfigValue prefers the environment, then a non-placeholder config value, then the default.
func getConfigValue(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// helpers to coerce local callback to https
func hasHTTPS(u string) bool { return strings.HasPrefix(u, "https://") }
func toHTTPSCallback(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + u[len("http://"):]
	}
	return u
}
