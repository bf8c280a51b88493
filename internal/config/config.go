package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Concordium/concordium-web3id/internal/log"
)

// Configuration holds the project configuration
type Configuration struct {
	ServerPort int
	Database   Database `mapstructure:"Database"`
	Cache      Cache    `mapstructure:"Cache"`
	Ledger     Ledger   `mapstructure:"Ledger"`
	Issuer     Issuer   `mapstructure:"Issuer"`
	Verifier   Verifier `mapstructure:"Verifier"`
	Log        Log      `mapstructure:"Log"`
}

// Database has the database configuration
// URL: The database connection string
type Database struct {
	URL string `mapstructure:"Url" tip:"The Datasource name locator"`
}

// Cache configurations
type Cache struct {
	RedisUrl string        `mapstructure:"RedisUrl" tip:"The redis url to use as a cache"`
	TTL      time.Duration `mapstructure:"TTL" tip:"Time to live for cached ledger lookups"`
}

// Ledger holds the connection parameters for the node the services submit to
// and read from.
type Ledger struct {
	URL              string        `mapstructure:"Url" tip:"Ledger node API base url"`
	RequestTimeout   time.Duration `mapstructure:"RequestTimeout" tip:"Per request timeout against the node"`
	TelegramRegistry string        `mapstructure:"TelegramRegistry" tip:"Address of the Telegram registry contract"`
	DiscordRegistry  string        `mapstructure:"DiscordRegistry" tip:"Address of the Discord registry contract"`
}

// Issuer configures the credential issuance service.
type Issuer struct {
	WalletPath        string        `mapstructure:"WalletPath" tip:"Path to the issuer account keys"`
	IssuerKeyPath     string        `mapstructure:"IssuerKeyPath" tip:"Path to the credential signing key"`
	Registry          string        `mapstructure:"Registry" tip:"Address of the registry contract credentials are issued into"`
	CredentialType    string        `mapstructure:"CredentialType" tip:"Platform specific credential type of issued credentials"`
	MetadataURL       string        `mapstructure:"MetadataUrl" tip:"Metadata url every issued credential must carry"`
	CredentialSchema  string        `mapstructure:"CredentialSchema" tip:"Credential schema url embedded in issued credentials"`
	MaxRegisterEnergy uint64        `mapstructure:"MaxRegisterEnergy" tip:"Energy allowance for register transactions"`
	TxExpiry          time.Duration `mapstructure:"TxExpiry" tip:"How far in the future submitted transactions expire"`
	RateLimitCapacity int           `mapstructure:"RateLimitCapacity" tip:"How many recent issuances the rate limiter remembers"`
	RateLimitRepeats  int           `mapstructure:"RateLimitRepeats" tip:"Max issuances per user id within the remembered window"`
}

// Verifier configures the presentation verification service.
type Verifier struct {
	ProofServiceURL    string        `mapstructure:"ProofServiceUrl" tip:"Url of the proof verification service"`
	FreshnessTolerance time.Duration `mapstructure:"FreshnessTolerance" tip:"Max distance between request timestamp and now"`
	DiscordBotToken    string        `mapstructure:"DiscordBotToken" tip:"Bot token used to resolve Discord usernames"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	 -4: Debug
//		0: Info
//		4: Warning
//		8: Error
//	 The default log level is debug
//
// Mode: Log mode is the format of the log. It can be text or json
// 1: JSON
// 2: Text
// The default log format is JSON
type Log struct {
	Level int `mapstructure:"Level" tip:"Minimum level to log: (-4:Debug, 0:Info, 4:Warning, 8:Error)"`
	Mode  int `mapstructure:"Mode" tip:"Log format (1: JSON, 2:Structured text)"`
}

// Sanitize performs some basic checks and sanitizations in the configuration.
// Returns nil if the config is acceptable, an error otherwise.
func (c *Configuration) Sanitize() error {
	if c.ServerPort == 0 {
		return fmt.Errorf("a server port must be provided")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("a database url must be provided")
	}
	if c.Ledger.URL == "" {
		return fmt.Errorf("a ledger node url must be provided")
	}
	if c.Issuer.MetadataURL != "" {
		mURL, err := url.ParseRequestURI(c.Issuer.MetadataURL)
		if err != nil {
			return fmt.Errorf("issuer metadata url is not a valid URL <%s>: %w", c.Issuer.MetadataURL, err)
		}
		if mURL.Scheme == "" {
			return fmt.Errorf("issuer metadata url must be an absolute URL")
		}
	}
	if c.Verifier.FreshnessTolerance < 0 {
		return fmt.Errorf("freshness tolerance cannot be negative")
	}
	return nil
}

// Load loads the configuration from a file
func Load(fileName string) (*Configuration, error) {
	bindEnv()
	pathFlag := viper.GetString("config")
	if _, err := os.Stat(pathFlag); err == nil {
		ext := filepath.Ext(pathFlag)
		if len(ext) > 1 {
			ext = ext[1:]
		}
		name := strings.Split(filepath.Base(pathFlag), ".")[0]
		viper.AddConfigPath(".")
		viper.SetConfigName(name)
		viper.SetConfigType(ext)
	} else {
		// Read default config file.
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		if fileName == "" {
			viper.SetConfigName("config")
		} else {
			viper.SetConfigName(fileName)
		}
	}
	config := &Configuration{
		Database: Database{},
		Ledger: Ledger{
			RequestTimeout: 5 * time.Second,
		},
		Issuer: Issuer{
			TxExpiry:          5 * time.Minute,
			RateLimitCapacity: 1024,
			RateLimitRepeats:  3,
		},
		Verifier: Verifier{
			FreshnessTolerance: 10 * time.Minute,
		},
		Cache: Cache{
			TTL: time.Minute,
		},
		Log: Log{
			Level: log.LevelDebug,
			Mode:  log.OutputText,
		},
	}
	ctx := context.Background()
	if err := viper.ReadInConfig(); err != nil {
		log.Info(ctx, "config file not loaded, relying on env vars", "err", err)
	}
	if err := viper.Unmarshal(config); err != nil {
		log.Error(ctx, "error unmarshalling config file", "err", err)
	}
	checkEnvVars(ctx, config)
	return config, nil
}

func bindEnv() {
	viper.SetEnvPrefix("WEB3ID")
	_ = viper.BindEnv("ServerPort", "WEB3ID_SERVER_PORT")

	_ = viper.BindEnv("Database.Url", "WEB3ID_DATABASE_URL")

	_ = viper.BindEnv("Cache.RedisUrl", "WEB3ID_REDIS_URL")
	_ = viper.BindEnv("Cache.TTL", "WEB3ID_CACHE_TTL")

	_ = viper.BindEnv("Ledger.Url", "WEB3ID_LEDGER_URL")
	_ = viper.BindEnv("Ledger.RequestTimeout", "WEB3ID_LEDGER_REQUEST_TIMEOUT")
	_ = viper.BindEnv("Ledger.TelegramRegistry", "WEB3ID_TELEGRAM_REGISTRY_ADDRESS")
	_ = viper.BindEnv("Ledger.DiscordRegistry", "WEB3ID_DISCORD_REGISTRY_ADDRESS")

	_ = viper.BindEnv("Issuer.WalletPath", "WEB3ID_ISSUER_WALLET")
	_ = viper.BindEnv("Issuer.IssuerKeyPath", "WEB3ID_ISSUER_KEY")
	_ = viper.BindEnv("Issuer.Registry", "WEB3ID_ISSUER_REGISTRY_ADDRESS")
	_ = viper.BindEnv("Issuer.CredentialType", "WEB3ID_ISSUER_CREDENTIAL_TYPE")
	_ = viper.BindEnv("Issuer.MetadataUrl", "WEB3ID_ISSUER_METADATA_URL")
	_ = viper.BindEnv("Issuer.CredentialSchema", "WEB3ID_ISSUER_CREDENTIAL_SCHEMA")
	_ = viper.BindEnv("Issuer.MaxRegisterEnergy", "WEB3ID_ISSUER_MAX_REGISTER_ENERGY")
	_ = viper.BindEnv("Issuer.TxExpiry", "WEB3ID_ISSUER_TX_EXPIRY")
	_ = viper.BindEnv("Issuer.RateLimitCapacity", "WEB3ID_ISSUER_RATE_LIMIT_CAPACITY")
	_ = viper.BindEnv("Issuer.RateLimitRepeats", "WEB3ID_ISSUER_RATE_LIMIT_REPEATS")

	_ = viper.BindEnv("Verifier.ProofServiceUrl", "WEB3ID_VERIFIER_PROOF_SERVICE_URL")
	_ = viper.BindEnv("Verifier.FreshnessTolerance", "WEB3ID_VERIFIER_FRESHNESS_TOLERANCE")
	_ = viper.BindEnv("Verifier.DiscordBotToken", "WEB3ID_VERIFIER_DISCORD_BOT_TOKEN")

	_ = viper.BindEnv("Log.Level", "WEB3ID_LOG_LEVEL")
	_ = viper.BindEnv("Log.Mode", "WEB3ID_LOG_MODE")

	viper.AutomaticEnv()
}

func checkEnvVars(ctx context.Context, cfg *Configuration) {
	if cfg.ServerPort == 0 {
		log.Info(ctx, "WEB3ID_SERVER_PORT value is missing")
	}
	if cfg.Database.URL == "" {
		log.Info(ctx, "WEB3ID_DATABASE_URL value is missing")
	}
	if cfg.Ledger.URL == "" {
		log.Info(ctx, "WEB3ID_LEDGER_URL value is missing")
	}
}
