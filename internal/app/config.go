package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	LocalStorePath string `default:"data/carts.db" usage:"SQLite file backing the device-local cart store" flag:"local-store-path"`
	CartBackend    string `default:"postgres" usage:"Remote cart backend: postgres or firestore" flag:"cart-backend"`
	Firebase       FirebaseConfig
	Cart           CartConfig
	Shop           ShopConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// FirebaseConfig selects the Firebase project used for ID token
// verification and, optionally, the Firestore cart backend.
type FirebaseConfig struct {
	ProjectID       string `usage:"Firebase project ID; empty falls back to the insecure dev token verifier" flag:"firebase-project"`
	CredentialsFile string `usage:"Service account credentials file (optional, ADC otherwise)" flag:"firebase-credentials"`
	EmulatorHost    string `usage:"Firestore emulator host for local development" flag:"firestore-emulator"`
}

// CartConfig controls the cart synchronization engine.
type CartConfig struct {
	Debounce           time.Duration `default:"500ms" usage:"Remote cart write coalescing delay"`
	ClearOnSignOut     bool          `default:"false" usage:"Empty the device cart when a user signs out" flag:"clear-on-sign-out"`
	SessionIdleTimeout time.Duration `default:"30m" usage:"Idle period before a device session is evicted" flag:"session-idle-timeout"`
}

// ShopConfig identifies the shop in customer-facing messages.
type ShopConfig struct {
	Name           string `default:"Pastas Vicenzo" usage:"Shop name shown in the order handoff message"`
	WhatsAppNumber string `usage:"Shop WhatsApp number in international format without the plus" flag:"whatsapp-number"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.CartBackend != "postgres" && cfg.CartBackend != "firestore" {
		return nil, errors.Errorf("unknown cart backend %q", cfg.CartBackend)
	}
	if cfg.CartBackend == "firestore" && cfg.Firebase.ProjectID == "" {
		return nil, errors.New("firestore cart backend requires SHOP_FIREBASE_PROJECT_ID")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
