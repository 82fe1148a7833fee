package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/quizgrade/internal/domain"
)

// Cache keeps quiz documents in Redis and falls back to the loader on a miss.
// Concurrent misses for the same quiz share one load.
//
// Only the quiz definition is cached; answer keys are always rebuilt from it.
type Cache struct {
	redis  redis.UniversalClient
	loader domain.QuizProvider
	prefix string
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

type CacheConfig struct {
	Redis  redis.UniversalClient
	Loader domain.QuizProvider
	Prefix string
	TTL    time.Duration
}

func NewCache(c CacheConfig) *Cache {
	return &Cache{
		redis:  c.Redis,
		loader: c.Loader,
		prefix: c.Prefix,
		ttl:    c.TTL,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Cache) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if q, ok := c.get(ctx, quizID); ok {
		return q, nil
	}

	res, err, _ := c.sf.Do(quizID, func() (any, error) {
		// Another caller may have filled the cache meanwhile.
		if q, ok := c.get(ctx, quizID); ok {
			return q, nil
		}

		q, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.set(ctx, q)
		return q, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}

	return res.(domain.Quiz), nil
}

func (c *Cache) get(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := c.redis.Get(ctx, c.key(quizID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.Quiz{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "quiz cache: get failed", "quiz_id", quizID, "error", err)
		return domain.Quiz{}, false
	}

	var q domain.Quiz
	if err := json.Unmarshal(raw, &q); err != nil {
		slog.WarnContext(ctx, "quiz cache: corrupted entry", "quiz_id", quizID, "error", err)
		return domain.Quiz{}, false
	}

	return q, true
}

// set is best effort: a failed write only costs a later reload.
func (c *Cache) set(ctx context.Context, q domain.Quiz) {
	data, err := json.Marshal(q)
	if err != nil {
		slog.WarnContext(ctx, "quiz cache: marshal failed", "quiz_id", q.ID, "error", err)
		return
	}

	if err := c.redis.Set(ctx, c.key(q.ID), data, c.ttlWithJitter()).Err(); err != nil {
		slog.WarnContext(ctx, "quiz cache: set failed", "quiz_id", q.ID, "error", err)
	}
}

// Invalidate drops the cached copies of the given quizzes so the next load
// reads the stored definition.
func (c *Cache) Invalidate(ctx context.Context, quizIDs ...string) error {
	if len(quizIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(quizIDs))
	for _, id := range quizIDs {
		keys = append(keys, c.key(id))
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("quiz cache: invalidate: %w", err)
	}

	return nil
}

func (c *Cache) key(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", c.prefix, quizID)
}

// ttlWithJitter adds up to 10% to the TTL to spread expirations.
func (c *Cache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(int64(c.ttl)/10+1))
}
