package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sander-remitly/plate-calc/internal/algorithm"
	"github.com/sander-remitly/plate-calc/internal/config"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/models"
	"go.uber.org/zap"
)

const (
	// Cache TTL constants
	InitialTTL = 5 * time.Minute
	MaxTTL     = 24 * time.Hour

	// Cache key prefix
	CacheKeyPrefix = "platecalc:"

	// Stats keys
	StatsHitsKey   = "platecalc:stats:hits"
	StatsMissesKey = "platecalc:stats:misses"

	resultKeyPrefix = CacheKeyPrefix + "result:"
)

// CachedResult represents a cached calculation result
type CachedResult struct {
	TargetWeight      float64             `json:"target_weight"`
	Mode              models.Mode         `json:"mode"`
	Plates            []models.PlateUsage `json:"plates"`
	TotalWeight       float64             `json:"total_weight"`
	PerSideWeight     float64             `json:"per_side_weight"`
	TotalPlates       int                 `json:"total_plates"`
	CalculationTimeMs int64               `json:"calculation_time_ms"`
	CachedAt          time.Time           `json:"cached_at"`
	HitCount          int                 `json:"hit_count"`
	CurrentTTL        time.Duration       `json:"current_ttl"`
}

// Result converts the cached entry back into an optimizer result
func (c *CachedResult) Result() algorithm.Result {
	return algorithm.Result{
		Success:       true,
		Plates:        c.Plates,
		TotalWeight:   c.TotalWeight,
		TargetWeight:  c.TargetWeight,
		PerSideWeight: c.PerSideWeight,
		TotalPlates:   c.TotalPlates,
		Mode:          c.Mode,
	}
}

// Cache handles Redis caching operations
type Cache struct {
	client  *redis.Client
	enabled bool
	ctx     context.Context
}

// NewCache creates a new cache instance. An unreachable server leaves the
// cache disabled rather than failing startup.
func NewCache(cfg config.RedisConfig) *Cache {
	if !cfg.Enabled {
		logger.Log.Info("Redis cache is disabled")
		return &Cache{enabled: false, ctx: context.Background()}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Log.Warn("Failed to connect to Redis. Cache disabled.",
			zap.String("address", cfg.Addr),
			zap.Error(err),
		)
		client.Close()
		return &Cache{enabled: false, ctx: ctx}
	}

	logger.Log.Info("Redis cache enabled", zap.String("address", cfg.Addr), zap.Int("db", cfg.DB))
	return &Cache{
		client:  client,
		enabled: true,
		ctx:     ctx,
	}
}

// IsEnabled returns whether caching is enabled
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

// Ping checks the Redis connection
func (c *Cache) Ping() error {
	if !c.enabled {
		return nil
	}
	return c.client.Ping(c.ctx).Err()
}

// generateKey creates a cache key from the request. Plate order is part of
// the key because it decides between equally short solutions.
func (c *Cache) generateKey(targetKg float64, mode models.Mode, plates []models.Plate) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(targetKg, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(string(mode))
	for _, p := range plates {
		fmt.Fprintf(&b, "|%q:%s:%d", p.ID, strconv.FormatFloat(p.Weight, 'g', -1, 64), p.Quantity)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", resultKeyPrefix, hash[:16])
}

// Get retrieves a cached result and updates its TTL
func (c *Cache) Get(targetKg float64, mode models.Mode, plates []models.Plate) (*CachedResult, bool) {
	if !c.enabled {
		return nil, false
	}

	key := c.generateKey(targetKg, mode, plates)

	data, err := c.client.Get(c.ctx, key).Bytes()
	if err == redis.Nil {
		c.incrementMisses()
		return nil, false
	} else if err != nil {
		logger.Log.Warn("Cache get error", zap.String("key", key), zap.Error(err))
		c.incrementMisses()
		return nil, false
	}

	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Log.Warn("Cache unmarshal error", zap.String("key", key), zap.Error(err))
		c.incrementMisses()
		return nil, false
	}

	// Cache hit! Double the TTL, up to max
	result.HitCount++
	newTTL := result.CurrentTTL * 2
	if newTTL > MaxTTL {
		newTTL = MaxTTL
	}
	result.CurrentTTL = newTTL

	if err := c.set(key, &result, newTTL); err != nil {
		logger.Log.Warn("Failed to update cache TTL", zap.String("key", key), zap.Error(err))
	}

	c.incrementHits()
	return &result, true
}

// Set stores a calculation result in cache. Failed results are not stored.
func (c *Cache) Set(plates []models.Plate, result algorithm.Result, calcTime int64) error {
	if !c.enabled || !result.Success {
		return nil
	}

	key := c.generateKey(result.TargetWeight, result.Mode, plates)

	cached := &CachedResult{
		TargetWeight:      result.TargetWeight,
		Mode:              result.Mode,
		Plates:            result.Plates,
		TotalWeight:       result.TotalWeight,
		PerSideWeight:     result.PerSideWeight,
		TotalPlates:       result.TotalPlates,
		CalculationTimeMs: calcTime,
		CachedAt:          time.Now(),
		HitCount:          0,
		CurrentTTL:        InitialTTL,
	}

	return c.set(key, cached, InitialTTL)
}

// set stores data with a specific TTL
func (c *Cache) set(key string, result *CachedResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(c.ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// GetStats returns cache statistics
func (c *Cache) GetStats() (*models.CacheStatsResponse, error) {
	if !c.enabled {
		return &models.CacheStatsResponse{Enabled: false, MemoryUsed: "N/A", Uptime: "N/A"}, nil
	}

	hits, _ := c.client.Get(c.ctx, StatsHitsKey).Int64()
	misses, _ := c.client.Get(c.ctx, StatsMissesKey).Int64()

	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	keys, err := c.client.Keys(c.ctx, resultKeyPrefix+"*").Result()
	if err != nil {
		logger.Log.Warn("Failed to get cache keys", zap.Error(err))
	}

	memoryUsed := "N/A"
	uptime := "N/A"
	if info, err := c.client.Info(c.ctx, "memory", "server").Result(); err == nil {
		if v := parseInfoField(info, "used_memory_human"); v != "" {
			memoryUsed = v
		}
		if secs, err := strconv.Atoi(parseInfoField(info, "uptime_in_seconds")); err == nil {
			uptime = (time.Duration(secs) * time.Second).String()
		}
	}

	return &models.CacheStatsResponse{
		Enabled:    true,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		TotalKeys:  int64(len(keys)),
		MemoryUsed: memoryUsed,
		Uptime:     uptime,
	}, nil
}

// Clear removes all cache entries and resets the counters
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}

	keys, err := c.client.Keys(c.ctx, resultKeyPrefix+"*").Result()
	if err != nil {
		return fmt.Errorf("failed to get cache keys: %w", err)
	}

	keys = append(keys, StatsHitsKey, StatsMissesKey)
	if err := c.client.Del(c.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.enabled && c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) incrementHits() {
	c.client.Incr(c.ctx, StatsHitsKey)
}

func (c *Cache) incrementMisses() {
	c.client.Incr(c.ctx, StatsMissesKey)
}

// parseInfoField extracts a field value from Redis INFO output
func parseInfoField(info, field string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimRight(line, "\r")
		if value, ok := strings.CutPrefix(line, field+":"); ok {
			return value
		}
	}
	return ""
}
