// Package mongo opens MongoDB clients with the official v2 driver.
//
// Config comes from MONGODB_* variables. New retries the initial ping and
// NewWithDatabase returns the configured database handle:
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
// Healthcheck wraps Ping for the HTTP health endpoint.
package mongo
