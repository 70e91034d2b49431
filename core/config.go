package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromName  string
		DefaultFromAddr  string
		SendgridApiKey   string
		RollbarToken     string
		Server           ServerConfig
		Database         DatabaseConfig
		Redis            RedisConfig
		Media            MediaConfig
		Jobs             JobsConfig
		Account          AccountConfig
		PasswordResetTTL time.Duration
	}

	ServerConfig struct {
		Host                       string
		Address                    string
		DebugHost                  string
		CORSOrigins                []string
		JWTExpirationDelta         time.Duration
		JWTRememberExpirationDelta time.Duration
		JWTRefreshExpirationDelta  time.Duration
		ShutdownTimeout            time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	MediaConfig struct {
		Dir           string
		BaseURL       string
		MaxImageWidth int
		MaxUploadSize int64
	}

	JobsConfig struct {
		PasswordExpiryInterval time.Duration
		BlacklistPurgeInterval time.Duration
	}

	AccountConfig struct {
		DefaultPasswordLifetime time.Duration
		PasswordHistorySize     int
		LoginAttemptLimit       int
		LoginAttemptWindow      time.Duration
	}
)

// DefaultFromEmail is the sender address of all outgoing emails.
func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromName, Address: c.DefaultFromAddr}
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig reads the configuration from the environment.
// A `config/.env.<env>` file is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("app.name", "Sala")
	v.SetDefault("secret.key", "q1x7-c&0=sala9bw!m$3u+dev@key4k#2yh^tr8zp%o6fj")
	v.SetDefault("frontend.url", "http://localhost:3000")
	v.SetDefault("email.from.name", "Sala")
	v.SetDefault("email.from.address", "noreply@localhost")
	v.SetDefault("password.reset.ttl", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":5001")
	v.SetDefault("server.debug.host", ":5002")
	v.SetDefault("server.cors.origins", "*")
	v.SetDefault("server.jwt.expiration", 24*time.Hour)
	v.SetDefault("server.jwt.remember.expiration", 7*24*time.Hour)
	v.SetDefault("server.jwt.refresh.expiration", 30*24*time.Hour)
	v.SetDefault("server.shutdown.timeout", 5*time.Second)

	v.SetDefault("database.engine", EnginePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sala")
	v.SetDefault("database.user", "sala")
	v.SetDefault("database.password", "sala")
	v.SetDefault("database.admin.user", "postgres")
	v.SetDefault("database.admin.password", "postgres")
	v.SetDefault("database.tls.disable", true)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("media.dir", filepath.Join(workDir, "media"))
	v.SetDefault("media.url", "/media")
	v.SetDefault("media.image.maxwidth", 1280)
	v.SetDefault("media.upload.maxsize", int64(10<<20))

	v.SetDefault("jobs.password.interval", time.Hour)
	v.SetDefault("jobs.blacklist.interval", 10*time.Minute)

	v.SetDefault("account.password.lifetime", 7*24*time.Hour)
	v.SetDefault("account.password.history", 5)
	v.SetDefault("account.login.attempts", 5)
	v.SetDefault("account.login.window", 15*time.Minute)

	conf := &Config{
		AppName:          v.GetString("app.name"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		SecretKey:        v.GetString("secret.key"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontend.url"),
		DefaultFromName:  v.GetString("email.from.name"),
		DefaultFromAddr:  v.GetString("email.from.address"),
		SendgridApiKey:   v.GetString("sendgrid.key"),
		RollbarToken:     v.GetString("rollbar.token"),
		PasswordResetTTL: v.GetDuration("password.reset.ttl"),
		Server: ServerConfig{
			Host:                       v.GetString("server.host"),
			Address:                    v.GetString("server.address"),
			DebugHost:                  v.GetString("server.debug.host"),
			CORSOrigins:                splitList(v.GetString("server.cors.origins")),
			JWTExpirationDelta:         v.GetDuration("server.jwt.expiration"),
			JWTRememberExpirationDelta: v.GetDuration("server.jwt.remember.expiration"),
			JWTRefreshExpirationDelta:  v.GetDuration("server.jwt.refresh.expiration"),
			ShutdownTimeout:            v.GetDuration("server.shutdown.timeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin.user"),
			AdminPassword: v.GetString("database.admin.password"),
			DisableTLS:    v.GetBool("database.tls.disable"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Media: MediaConfig{
			Dir:           v.GetString("media.dir"),
			BaseURL:       v.GetString("media.url"),
			MaxImageWidth: v.GetInt("media.image.maxwidth"),
			MaxUploadSize: v.GetInt64("media.upload.maxsize"),
		},
		Jobs: JobsConfig{
			PasswordExpiryInterval: v.GetDuration("jobs.password.interval"),
			BlacklistPurgeInterval: v.GetDuration("jobs.blacklist.interval"),
		},
		Account: AccountConfig{
			DefaultPasswordLifetime: v.GetDuration("account.password.lifetime"),
			PasswordHistorySize:     v.GetInt("account.password.history"),
			LoginAttemptLimit:       v.GetInt("account.login.attempts"),
			LoginAttemptWindow:      v.GetDuration("account.login.window"),
		},
	}
	if conf.TestMode {
		conf.Database.Engine = EngineMemory
	}
	return conf
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
