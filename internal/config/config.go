package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Modem    ModemConfig    `mapstructure:"modem"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SerialConfig struct {
	Port         string   `mapstructure:"port"` // device path or "auto"
	BaudRate     int      `mapstructure:"baud_rate"`
	ExcludePorts []string `mapstructure:"exclude_ports"`
}

type ModemConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxSockets    int           `mapstructure:"max_sockets"`
	SMSCharset    string        `mapstructure:"sms_charset"` // GSM or UCS2
	APN           string        `mapstructure:"apn"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	Auth          int           `mapstructure:"auth"` // 0 none, 1 PAP, 2 CHAP, 3 either
	AttachTimeout time.Duration `mapstructure:"attach_timeout"`
	AttachOnStart bool          `mapstructure:"attach_on_start"`
}

type WorkerConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	DeleteRead   bool          `mapstructure:"delete_read"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []UserConfig  `mapstructure:"users"`
}

// UserConfig is a dashboard account. PasswordHash is a bcrypt hash.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"` // admin, viewer
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "ug96d.db")
	v.SetDefault("serial.port", "auto")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("modem.poll_interval", "100ms")
	v.SetDefault("modem.max_sockets", 4)
	v.SetDefault("modem.sms_charset", "GSM")
	v.SetDefault("modem.apn", "")
	v.SetDefault("modem.user", "")
	v.SetDefault("modem.password", "")
	v.SetDefault("modem.auth", 0)
	v.SetDefault("modem.attach_on_start", false)
	v.SetDefault("modem.attach_timeout", "60s")
	v.SetDefault("worker.scan_interval", "30s")
	v.SetDefault("worker.delete_read", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("log.level", "info")
}

// Load reads config.yaml from the given directories, applies environment
// overrides (UG96_MODEM_APN for modem.apn) and validates the result.
func Load(v *viper.Viper, paths ...string) (Config, error) {
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("ug96")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch strings.ToUpper(c.Modem.SMSCharset) {
	case "GSM", "UCS2":
	default:
		return fmt.Errorf("modem.sms_charset: unsupported charset %q", c.Modem.SMSCharset)
	}
	if c.Modem.Auth < 0 || c.Modem.Auth > 3 {
		return fmt.Errorf("modem.auth: must be between 0 and 3, got %d", c.Modem.Auth)
	}
	for _, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users: empty username")
		}
		if u.Role != "admin" && u.Role != "viewer" {
			return fmt.Errorf("auth.users: %s has unknown role %q", u.Username, u.Role)
		}
	}
	return nil
}

// LoadConfig fills AppConfig from the working directory and exits on error.
func LoadConfig() {
	cfg, err := Load(viper.GetViper(), ".")
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	AppConfig = cfg
	log.Println("Configuration loaded successfully")
}

func (c Config) Dialer() modem.SerialDialer {
	return modem.SerialDialer{
		PortName:     c.Serial.Port,
		BaudRate:     c.Serial.BaudRate,
		ExcludePorts: c.Serial.ExcludePorts,
	}
}

// Driver builds the driver configuration. Timing fields not exposed here keep
// the driver defaults.
func (c Config) Driver() modem.Config {
	return modem.Config{
		Dialer:       c.Dialer(),
		PollInterval: c.Modem.PollInterval,
		MaxSockets:   c.Modem.MaxSockets,
		SMSCharset:   strings.ToUpper(c.Modem.SMSCharset),
	}
}

func (m ModemConfig) AccessPoint() modem.APN {
	return modem.APN{Name: m.APN, User: m.User, Password: m.Password, Auth: m.Auth}
}
