package cart

import (
	"time"

	"encore.app/coredb"
	"encore.app/pkg/config"
	"encore.app/pkg/pricing"
	"encore.app/pkg/snapshot"
)

// Initialize the cart service: configuration, durable snapshot storage,
// the pricing client and the realtime hub.
func init() {
	cfg := config.Initialize(coredb.DB, 30*time.Second)
	settings := cfg.GetSettings()

	storage := snapshot.NewSQLStorage(coredb.DB.Stdlib())

	pricer := pricing.NewClient(pricing.Options{
		BaseURL:          settings.PricingServiceURL,
		Timeout:          time.Duration(settings.PricingTimeoutSeconds) * time.Second,
		BreakerThreshold: settings.PricingBreakerThreshold,
	})

	hub := NewHub()
	manager := NewManager(ManagerOptions{
		Pricer:    pricer,
		Snapshots: storage,
		OnUpdate:  hub.BroadcastView,
	})

	setService(&serviceState{manager: manager, hub: hub, snapshots: storage})
}
