// Package config provides system configuration management with hot-reload capabilities
package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"encore.dev/storage/sqldb"
)

// SystemSettings holds all system configuration
type SystemSettings struct {
	// Pricing reconciliation settings
	PricingServiceURL       string `json:"pricing_service_url"`
	PricingTimeoutSeconds   int    `json:"pricing_timeout_seconds"`
	PricingBreakerThreshold int    `json:"pricing_breaker_threshold"`

	// Adapter service endpoints
	PromoServiceURL    string `json:"promo_service_url"`
	LoyaltyServiceURL  string `json:"loyalty_service_url"`
	ReferralServiceURL string `json:"referral_service_url"`

	// Payment settings
	PaymentsEnabled     bool   `json:"payments_enabled"`
	PaymentsTestMode    bool   `json:"payments_test_mode"`
	PaymentsCurrency    string `json:"payments_currency"`
	PaymentsCardURL     string `json:"payments_card_url"`
	PaymentsTransferURL string `json:"payments_transfer_url"`

	// Gift promotion settings
	GiftTableVariant string `json:"gift_table_variant"`

	// Cart settings
	CartDefaultCountry   string `json:"cart_default_country"`
	CartSnapshotTTLHours int    `json:"cart_snapshot_ttl_hours"`
	CartIdleEvictMinutes int    `json:"cart_idle_evict_minutes"`

	// Checkout settings
	CheckoutRateLimitPerMinute int `json:"checkout_rate_limit_per_minute"`

	// WebSocket settings
	WSEnabled           bool `json:"ws_enabled"`
	WSMaxConnections    int  `json:"ws_max_connections"`
	WSHeartbeatInterval int  `json:"ws_heartbeat_interval"`

	// App settings
	AppName            string `json:"app_name"`
	AppVersion         string `json:"app_version"`
	AppMaintenanceMode bool   `json:"app_maintenance_mode"`

	// Metadata
	LastUpdated time.Time `json:"last_updated"`
}

// ChangeListener is called when settings change
type ChangeListener func(settings *SystemSettings)

// ConfigManager manages system configuration with hot-reload
type ConfigManager struct {
	db           *sqldb.Database
	settings     *SystemSettings
	mutex        sync.RWMutex
	listeners    []ChangeListener
	stopReload   chan struct{}
	reloadTicker *time.Ticker
	lastReload   time.Time
}

// settingRow represents a row from system_settings table
type settingRow struct {
	Key   string         `json:"key"`
	Value sql.NullString `json:"value"`
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(db *sqldb.Database, reloadInterval time.Duration) *ConfigManager {
	manager := &ConfigManager{
		db:         db,
		settings:   &SystemSettings{},
		listeners:  make([]ChangeListener, 0),
		stopReload: make(chan struct{}),
	}

	// Load initial settings
	if err := manager.LoadSettings(); err != nil {
		log.Printf("Failed to load initial settings: %v", err)
		manager.setDefaults()
	}

	// Start hot-reload if interval > 0
	if reloadInterval > 0 {
		manager.startHotReload(reloadInterval)
	}

	return manager
}

// LoadSettings loads settings from database
func (cm *ConfigManager) LoadSettings() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := cm.db.Query(ctx, `
		SELECT key, value
		FROM system_settings
		WHERE value IS NOT NULL
		ORDER BY key
	`)
	if err != nil {
		return fmt.Errorf("failed to query system_settings: %w", err)
	}
	defer rows.Close()

	settingsMap := make(map[string]string)

	for rows.Next() {
		var row settingRow
		if err := rows.Scan(&row.Key, &row.Value); err != nil {
			log.Printf("Failed to scan setting row: %v", err)
			continue
		}

		if row.Value.Valid {
			settingsMap[row.Key] = row.Value.String
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating settings: %w", err)
	}

	return cm.populateSettings(settingsMap)
}

// populateSettings populates SystemSettings from key-value map
func (cm *ConfigManager) populateSettings(settingsMap map[string]string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	settings := &SystemSettings{}

	// Pricing reconciliation
	settings.PricingServiceURL = parseString(settingsMap["pricing.service_url"], "https://pricing.internal/v1/calculate")
	settings.PricingTimeoutSeconds = parseInt(settingsMap["pricing.timeout_seconds"], 15)
	settings.PricingBreakerThreshold = parseInt(settingsMap["pricing.breaker_threshold"], 5)

	// Adapter services
	settings.PromoServiceURL = parseString(settingsMap["promo.service_url"], "https://promo.internal/v1/validate")
	settings.LoyaltyServiceURL = parseString(settingsMap["loyalty.service_url"], "https://loyalty.internal/v1/benefits")
	settings.ReferralServiceURL = parseString(settingsMap["referral.service_url"], "https://referral.internal/v1/discount")

	// Payment settings
	settings.PaymentsEnabled = parseBool(settingsMap["payments.enabled"], true)
	settings.PaymentsTestMode = parseBool(settingsMap["payments.test_mode"], true)
	settings.PaymentsCurrency = parseString(settingsMap["payments.currency"], "EUR")
	settings.PaymentsCardURL = parseString(settingsMap["payments.card_url"], "https://orders.internal/v1/payments/card")
	settings.PaymentsTransferURL = parseString(settingsMap["payments.transfer_url"], "https://orders.internal/v1/payments/transfer")

	// Gift promotion: which of the two divergent tier tables is
	// authoritative. Never merged; designated here.
	settings.GiftTableVariant = parseString(settingsMap["gifts.table_variant"], "classic")

	// Cart settings
	settings.CartDefaultCountry = parseString(settingsMap["cart.default_country"], "FR")
	settings.CartSnapshotTTLHours = parseInt(settingsMap["cart.snapshot_ttl_hours"], 72)
	settings.CartIdleEvictMinutes = parseInt(settingsMap["cart.idle_evict_minutes"], 60)

	// Checkout settings
	settings.CheckoutRateLimitPerMinute = parseInt(settingsMap["checkout.rate_limit_per_minute"], 5)

	// WebSocket settings
	settings.WSEnabled = parseBool(settingsMap["ws.enabled"], true)
	settings.WSMaxConnections = parseInt(settingsMap["ws.max_connections"], 1000)
	settings.WSHeartbeatInterval = parseInt(settingsMap["ws.heartbeat_interval"], 30)

	// App settings
	settings.AppName = parseString(settingsMap["app.name"], "cv-cart")
	settings.AppVersion = parseString(settingsMap["app.version"], "1.0.0")
	settings.AppMaintenanceMode = parseBool(settingsMap["app.maintenance_mode"], false)

	settings.LastUpdated = time.Now().UTC()

	// Update settings atomically
	oldSettings := cm.settings
	cm.settings = settings
	cm.lastReload = time.Now().UTC()

	// Notify listeners if settings actually changed
	if oldSettings != nil {
		go cm.notifyListeners(settings)
	}

	return nil
}

// GetSettings returns current system settings (thread-safe)
func (cm *ConfigManager) GetSettings() *SystemSettings {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	// Return a copy to prevent external modifications
	settingsCopy := *cm.settings
	return &settingsCopy
}

// UpdateSetting updates a single setting in the database
func (cm *ConfigManager) UpdateSetting(ctx context.Context, key, value string) error {
	_, err := cm.db.Exec(ctx, `
		UPDATE system_settings
		SET value = $1, updated_at = (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')
		WHERE key = $2
	`, value, key)

	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	// Reload settings to reflect changes
	go func() {
		time.Sleep(100 * time.Millisecond) // Small delay to ensure DB commit
		if err := cm.LoadSettings(); err != nil {
			log.Printf("Failed to reload settings after update: %v", err)
		}
	}()

	return nil
}

// AddChangeListener adds a listener for settings changes
func (cm *ConfigManager) AddChangeListener(listener ChangeListener) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.listeners = append(cm.listeners, listener)
}

// startHotReload starts the hot-reload mechanism
func (cm *ConfigManager) startHotReload(interval time.Duration) {
	cm.reloadTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-cm.reloadTicker.C:
				if err := cm.LoadSettings(); err != nil {
					log.Printf("Hot-reload failed: %v", err)
				}
			case <-cm.stopReload:
				return
			}
		}
	}()
}

// StopHotReload stops the hot-reload mechanism
func (cm *ConfigManager) StopHotReload() {
	if cm.reloadTicker != nil {
		cm.reloadTicker.Stop()
	}
	close(cm.stopReload)
}

// notifyListeners notifies all change listeners
func (cm *ConfigManager) notifyListeners(settings *SystemSettings) {
	cm.mutex.RLock()
	listeners := make([]ChangeListener, len(cm.listeners))
	copy(listeners, cm.listeners)
	cm.mutex.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Config change listener panicked: %v", r)
				}
			}()
			listener(settings)
		}()
	}
}

// setDefaults sets default values when database is unavailable
func (cm *ConfigManager) setDefaults() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.settings = &SystemSettings{
		PricingServiceURL:          "https://pricing.internal/v1/calculate",
		PricingTimeoutSeconds:      15,
		PricingBreakerThreshold:    5,
		PromoServiceURL:            "https://promo.internal/v1/validate",
		LoyaltyServiceURL:          "https://loyalty.internal/v1/benefits",
		ReferralServiceURL:         "https://referral.internal/v1/discount",
		PaymentsEnabled:            true,
		PaymentsTestMode:           true,
		PaymentsCurrency:           "EUR",
		PaymentsCardURL:            "https://orders.internal/v1/payments/card",
		PaymentsTransferURL:        "https://orders.internal/v1/payments/transfer",
		GiftTableVariant:           "classic",
		CartDefaultCountry:         "FR",
		CartSnapshotTTLHours:       72,
		CartIdleEvictMinutes:       60,
		CheckoutRateLimitPerMinute: 5,
		WSEnabled:                  true,
		WSMaxConnections:           1000,
		WSHeartbeatInterval:        30,
		AppName:                    "cv-cart",
		AppVersion:                 "1.0.0",
		LastUpdated:                time.Now().UTC(),
	}
}

// Helper parsing functions
func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseString(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// Global manager instance

var (
	globalManager *ConfigManager
	globalMutex   sync.RWMutex
)

// Initialize sets up the global configuration manager
func Initialize(db *sqldb.Database, reloadInterval time.Duration) *ConfigManager {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager == nil {
		globalManager = NewConfigManager(db, reloadInterval)
	}
	return globalManager
}

// GetGlobalManager returns the global configuration manager
func GetGlobalManager() *ConfigManager {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	return globalManager
}

// GetSettings returns current settings from the global manager, or nil
// when configuration has not been initialized.
func GetSettings() *SystemSettings {
	globalMutex.RLock()
	manager := globalManager
	globalMutex.RUnlock()

	if manager == nil {
		return nil
	}
	return manager.GetSettings()
}
