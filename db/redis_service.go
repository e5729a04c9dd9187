package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"gradebook-server-go/config"
	"gradebook-server-go/models"
)

const receiptPrefix = "receipt:" // Hash prefix: receipt:{kind}:{parentId} -> last committed submission

// ReceiptService keeps the acknowledgment of the last committed submission
// per parent in Redis.
type ReceiptService struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(client *redis.Client, ttl time.Duration) *ReceiptService {
	return &ReceiptService{Client: client, TTL: ttl}
}

// Helper to generate receipt key
func getReceiptKey(kind string, parentID int64) string {
	return receiptPrefix + kind + ":" + strconv.FormatInt(parentID, 10)
}

// SaveReceipt overwrites the receipt for r.Kind/r.ParentID.
func (s *ReceiptService) SaveReceipt(ctx context.Context, r models.Receipt) error {
	key := getReceiptKey(r.Kind, r.ParentID)
	pipe := s.Client.TxPipeline()

	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		"kind":        r.Kind,
		"parentId":    r.ParentID,
		"items":       r.Items,
		"inserted":    r.Inserted,
		"updated":     r.Updated,
		"requestId":   r.RequestID,
		"submittedAt": r.SubmittedAt.UTC().Format(time.RFC3339Nano),
	})
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", key, err)
	}
	return nil
}

// GetReceipt returns the stored receipt, or nil when there is none.
func (s *ReceiptService) GetReceipt(ctx context.Context, kind string, parentID int64) (*models.Receipt, error) {
	key := getReceiptKey(kind, parentID)
	data, err := s.Client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get receipt %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return parseReceipt(data)
}

func parseReceipt(data map[string]string) (*models.Receipt, error) {
	r := &models.Receipt{Kind: data["kind"], RequestID: data["requestId"]}
	var err error
	if r.ParentID, err = strconv.ParseInt(data["parentId"], 10, 64); err != nil {
		return nil, fmt.Errorf("corrupt receipt parentId %q: %w", data["parentId"], err)
	}
	for field, dst := range map[string]*int{"items": &r.Items, "inserted": &r.Inserted, "updated": &r.Updated} {
		if *dst, err = strconv.Atoi(data[field]); err != nil {
			return nil, fmt.Errorf("corrupt receipt %s %q: %w", field, data[field], err)
		}
	}
	if r.SubmittedAt, err = time.Parse(time.RFC3339Nano, data["submittedAt"]); err != nil {
		return nil, fmt.Errorf("corrupt receipt submittedAt %q: %w", data["submittedAt"], err)
	}
	return r, nil
}

// InitializeRedisClient creates a Redis client and pings it.
func InitializeRedisClient(ctx context.Context, opts config.RedisOptions, log logrus.FieldLogger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", opts.Addr, err)
	}

	log.WithFields(logrus.Fields{"addr": opts.Addr, "db": opts.DB}).Info("Successfully connected to Redis")
	return rdb, nil
}
