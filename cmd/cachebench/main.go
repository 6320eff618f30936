package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/critichord/config"
	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

// 关注流作者解析的访问模式：少数热门作者占大部分查询，约一半按后端 ID 引用
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	USERS := envInt("USERS", 20000)
	LOOKUPS := envInt("LOOKUPS", 50000)
	INVALIDATE := envInt("INVALIDATE_EVERY", 500)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Printf("redis unavailable at %s: %v\n", redisAddr, err)
		os.Exit(1)
	}

	fmt.Println("Setting up test data...")
	users := make([]model.User, USERS)
	for i := range users {
		id := uuid.NewString()
		users[i] = model.User{ID: id, BackendID: "b" + strconv.Itoa(i) + "-" + id[:6], Username: fmt.Sprintf("user_%d", i)}
	}
	if err := db.CreateInBatches(&users, 1000).Error; err != nil {
		panic(err)
	}

	repo := repository.NewUserRepository(db)
	rng := rand.New(rand.NewSource(42))
	zipf := rand.NewZipf(rng, 1.2, 1, uint64(USERS-1))
	keys := make([]string, LOOKUPS)
	for i := range keys {
		u := users[zipf.Uint64()]
		if i%2 == 0 {
			keys[i] = u.ID
		} else {
			keys[i] = u.BackendID
		}
	}

	run := func(name string, lookup cache.UserLookup) {
		recs := make([]time.Duration, 0, LOOKUPS)
		t0 := time.Now()
		for i, key := range keys {
			st := time.Now()
			if _, err := lookup.Lookup(ctx, key); err != nil {
				panic(err)
			}
			recs = append(recs, time.Since(st))
			// 模拟关注关系变化导致的缓存失效
			if INVALIDATE > 0 && i%INVALIDATE == 0 {
				lookup.Invalidate(ctx, key)
			}
		}
		total := time.Since(t0)
		fmt.Printf("%-8s total=%v per op=%v p50=%v p95=%v p99=%v\n",
			name, total, total/time.Duration(LOOKUPS), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	}

	fmt.Printf("USERS=%d LOOKUPS=%d INVALIDATE_EVERY=%d\n", USERS, LOOKUPS, INVALIDATE)
	run("direct", cache.DirectLookup{Repo: repo})
	uc := cache.NewUserCache(repo, client, cfg.Redis.UserTTL)
	run("cached", uc)
	hits, misses := uc.Counters()
	fmt.Printf("cache hits=%d misses=%d ratio=%.2f%%\n", hits, misses, 100*float64(hits)/float64(hits+misses))
}
