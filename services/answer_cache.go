package services

import (
	"context"
	"encoding/json"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/utils"

	"github.com/redis/go-redis/v9"
)

// AnswerCache serves previously generated answers for repeated questions.
// Implementations must fail open: a cache outage degrades to a miss, never
// to a failed query.
type AnswerCache interface {
	Get(ctx context.Context, question string) (models.QueryResult, bool)
	Set(ctx context.Context, question string, result models.QueryResult)
}

// RedisAnswerCache caches query results in Redis keyed by a fingerprint of
// the question, so trivially different phrasings of the same string hit.
type RedisAnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisAnswerCache creates an answer cache with the given TTL.
func NewRedisAnswerCache(rdb *redis.Client, ttl time.Duration) *RedisAnswerCache {
	return &RedisAnswerCache{rdb: rdb, ttl: ttl}
}

func answerKey(question string) string {
	return "answer:" + utils.ContentFingerprint(question)
}

// Get returns the cached result for the question, if any.
func (c *RedisAnswerCache) Get(ctx context.Context, question string) (models.QueryResult, bool) {
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()

	data, err := c.rdb.Get(ctx, answerKey(question)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Debug("answer cache read failed", "error", err)
		}
		return models.QueryResult{}, false
	}

	var result models.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Debug("answer cache entry corrupt, dropping", "error", err)
		c.rdb.Del(ctx, answerKey(question))
		return models.QueryResult{}, false
	}
	return result, true
}

// Set stores the result for the question. Write failures are swallowed.
func (c *RedisAnswerCache) Set(ctx context.Context, question string, result models.QueryResult) {
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, answerKey(question), data, c.ttl).Err(); err != nil {
		logger.Debug("answer cache write failed", "error", err)
	}
}
