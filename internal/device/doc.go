// Package device provides the registry of paired Tuya devices.
//
// A device is registered once the user picks it from a pairing session's
// discovery results. Discovery consults the registry so an already paired
// device is never offered again.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │───▶│    Repository    │───▶ SQLite (devices table)
//	│ • in-memory cache│    │ • JSON columns   │
//	│ • (product, id)  │    │ • unique pair    │
//	│   index          │    └──────────────────┘
//	└──────────────────┘
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	if registry.IsRegistered(productID, deviceID) {
//	    // skip
//	}
package device
