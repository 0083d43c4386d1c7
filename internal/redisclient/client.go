// Copyright 2025 James Ross
package redisclient

import (
	"github.com/adaspeas/deliveryd/internal/config"
	"github.com/redis/go-redis/v9"
)

// New returns a configured go-redis v9 client for the durable job queue.
func New(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Queue.Addr,
		Password:     cfg.Queue.Password,
		DB:           cfg.Queue.DB,
		DialTimeout:  cfg.Queue.DialTimeout,
		ReadTimeout:  cfg.Queue.ReadTimeout,
		WriteTimeout: cfg.Queue.WriteTimeout,
	})
}
