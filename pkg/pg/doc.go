// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Config is filled from PG_* environment variables. Connect opens a
// *pgxpool.Pool with retries, Migrate runs goose migrations from an embedded
// filesystem over the same pool, and Healthcheck returns a health check for the
// HTTP health endpoint.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//	    return err
//	}
//
// Error helpers such as IsSerializationError classify *pgconn.PgError values
// so callers can decide whether to retry.
package pg
