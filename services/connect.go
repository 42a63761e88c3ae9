package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo connects, pings and returns the named database.
func ConnectMongo(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			log.Warnf("Failed to disconnect from MongoDB: %v", derr)
		}
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	log.Infof("Connected to MongoDB database %s", dbName)
	return client.Database(dbName), nil
}

// ConnectRedis returns nil when addr is empty; callers treat a nil client
// as "no cache, no geo index".
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	if addr == "" {
		log.Warn("REDIS_ADDR not set, card cache and geo index disabled")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Infof("Connected to Redis at %s (db %d)", addr, db)
	return client, nil
}
