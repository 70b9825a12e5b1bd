package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultCartMaxItems        = 50
	defaultMinWeight           = 1
	defaultMaxWeight           = 10000
	defaultMinQuantity         = 1
	defaultMaxQuantity         = 999
	defaultAdjustmentTolerance = "0.10"
	defaultReportTopLimit      = 10
	defaultFinalizeTimeout     = 5 * time.Second
	defaultFirestoreCollection = "pos_state"
	defaultSalesTopic          = "pos-sales"

	// StorageMemory keeps snapshots in process memory.
	StorageMemory = "memory"
	// StorageFirestore persists snapshots to a Firestore collection.
	StorageFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Cart      CartConfig
	Sales     SalesConfig
	Reports   ReportConfig
	Storage   StorageConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Catalog   CatalogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// CartConfig bounds the cart store and its line item validation.
type CartConfig struct {
	MaxItems          int
	ValidationEnabled bool
	MinWeight         float64
	MaxWeight         float64
	MinQuantity       int
	MaxQuantity       int
	TaxRate           decimal.Decimal
}

// SalesConfig controls sale finalization.
type SalesConfig struct {
	AdjustmentTolerance decimal.Decimal
	FinalizeTimeout     time.Duration
}

// ReportConfig controls report aggregation defaults.
type ReportConfig struct {
	TopLimit int
	Location *time.Location
}

// StorageConfig selects the persistence backend for store snapshots.
type StorageConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// PubSubConfig enables sale event publishing when ProjectID is set.
type PubSubConfig struct {
	ProjectID  string
	SalesTopic string
}

// Enabled reports whether sale events should be published.
func (c PubSubConfig) Enabled() bool {
	return strings.TrimSpace(c.ProjectID) != ""
}

// CatalogConfig points at an optional YAML menu replacing the built-in one.
type CatalogConfig struct {
	File string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// lookupFunc resolves a key with precedence explicit map > OS env > .env file.
type lookupFunc func(string) (string, bool)

// reader parses typed values and remembers which keys failed to parse.
type reader struct {
	lookup  lookupFunc
	invalid []string
}

// Load assembles the application configuration by combining defaults, .env overrides and
// environment variables.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	r := &reader{lookup: func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}}

	cfg := Config{
		Server: ServerConfig{
			Port:            r.stringWithDefault("POS_SERVER_PORT", defaultPort),
			ReadTimeout:     r.durationWithDefault("POS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    r.durationWithDefault("POS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     r.durationWithDefault("POS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: r.durationWithDefault("POS_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Cart: CartConfig{
			MaxItems:          r.intWithDefault("POS_CART_MAX_ITEMS", defaultCartMaxItems),
			ValidationEnabled: r.boolWithDefault("POS_CART_VALIDATION", true),
			MinWeight:         r.floatWithDefault("POS_ITEM_MIN_WEIGHT", defaultMinWeight),
			MaxWeight:         r.floatWithDefault("POS_ITEM_MAX_WEIGHT", defaultMaxWeight),
			MinQuantity:       r.intWithDefault("POS_ITEM_MIN_QUANTITY", defaultMinQuantity),
			MaxQuantity:       r.intWithDefault("POS_ITEM_MAX_QUANTITY", defaultMaxQuantity),
			TaxRate:           r.decimalWithDefault("POS_TAX_RATE", decimal.Zero),
		},
		Sales: SalesConfig{
			AdjustmentTolerance: r.decimalWithDefault("POS_ADJUSTMENT_TOLERANCE", decimal.RequireFromString(defaultAdjustmentTolerance)),
			FinalizeTimeout:     r.durationWithDefault("POS_FINALIZE_TIMEOUT", defaultFinalizeTimeout),
		},
		Reports: ReportConfig{
			TopLimit: r.intWithDefault("POS_REPORT_TOP_LIMIT", defaultReportTopLimit),
			Location: r.locationWithDefault("POS_REPORT_TIMEZONE", time.Local),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(r.stringWithDefault("POS_STORAGE_BACKEND", StorageMemory)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    r.stringWithDefault("POS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: r.stringWithDefault("POS_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   r.stringWithDefault("POS_FIRESTORE_COLLECTION", defaultFirestoreCollection),
		},
		PubSub: PubSubConfig{
			ProjectID:  r.stringWithDefault("POS_PUBSUB_PROJECT_ID", ""),
			SalesTopic: r.stringWithDefault("POS_PUBSUB_SALES_TOPIC", defaultSalesTopic),
		},
		Catalog: CatalogConfig{
			File: r.stringWithDefault("POS_CATALOG_FILE", ""),
		},
	}

	if err := validateConfig(cfg, r.invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Cart.MaxItems <= 0 {
		missing = append(missing, "Cart.MaxItems")
	}
	if cfg.Cart.MinWeight <= 0 || cfg.Cart.MaxWeight < cfg.Cart.MinWeight {
		missing = append(missing, "Cart.WeightBounds")
	}
	if cfg.Cart.MinQuantity <= 0 || cfg.Cart.MaxQuantity < cfg.Cart.MinQuantity {
		missing = append(missing, "Cart.QuantityBounds")
	}
	if cfg.Cart.TaxRate.IsNegative() {
		missing = append(missing, "Cart.TaxRate")
	}
	if cfg.Sales.AdjustmentTolerance.IsNegative() || cfg.Sales.AdjustmentTolerance.GreaterThan(decimal.NewFromInt(1)) {
		missing = append(missing, "Sales.AdjustmentTolerance")
	}
	if cfg.Sales.FinalizeTimeout <= 0 {
		missing = append(missing, "Sales.FinalizeTimeout")
	}
	if cfg.Reports.TopLimit <= 0 {
		missing = append(missing, "Reports.TopLimit")
	}
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageFirestore:
		if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}
	if cfg.PubSub.Enabled() && strings.TrimSpace(cfg.PubSub.SalesTopic) == "" {
		missing = append(missing, "PubSub.SalesTopic")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func (r *reader) raw(key string) (string, bool) {
	value, ok := r.lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *reader) stringWithDefault(key, fallback string) string {
	if value, ok := r.raw(key); ok {
		return value
	}
	return fallback
}

func (r *reader) durationWithDefault(key string, fallback time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return d
}

func (r *reader) intWithDefault(key string, fallback int) int {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return parsed
}

func (r *reader) floatWithDefault(key string, fallback float64) float64 {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return parsed
}

func (r *reader) decimalWithDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return parsed
}

func (r *reader) boolWithDefault(key string, fallback bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	r.invalid = append(r.invalid, key)
	return fallback
}

func (r *reader) locationWithDefault(key string, fallback *time.Location) *time.Location {
	value, ok := r.raw(key)
	if !ok {
		return fallback
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return fallback
	}
	return loc
}
