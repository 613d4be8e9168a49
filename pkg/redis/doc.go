// Package redis connects to Redis with go-redis/v9.
//
// Config is read from REDIS_* variables; Connect retries the initial ping and
// Healthcheck wraps PING for the health endpoint. Key layout and transactions
// belong to the callers (see the entitlement redisstore).
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis
