// Package mealsync provides an embeddable offline write queue for meal
// records.
//
// Writes go straight to the meal service while the device is online and
// nothing is pending. Otherwise they are persisted in a bounded FIFO queue
// and replayed in order by a background reconciler once connectivity
// returns.
//
// # Basic Usage
//
//	cfg := mealsync.Config{
//	    StoreDir:   "/var/lib/mealsync",
//	    ServiceURL: "https://api.example.com",
//	    AuthToken:  "token",
//	}
//
//	svc, err := mealsync.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	meal, outcome, err := svc.CreateMeal(ctx, record)
//
// # Configuration
//
// Zero fields of [Config] are filled by [Config.SetDefaults]. StoreBackend
// selects where the queue is persisted (file, sqlite or memory) and
// RemoteBackend selects the meal store (the REST service or PostgreSQL).
//
// # Connectivity
//
// NetworkMode picks the monitor: "probe" polls a health URL, "flagfile"
// reports online while a file exists, and "always" starts online and can be
// flipped with [Service.SetOnline].
//
// # Events
//
// Implement [EventHandler] (embedding [BaseEventHandler]) and pass it with
// [WithEventHandler] to observe state changes and replay outcomes. Events
// are called synchronously from the sync goroutine.
package mealsync
