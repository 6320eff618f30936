package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/critichord/config"
	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/notify"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/internal/service"
	"github.com/d60-Lab/critichord/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func check(err error) {
	if err != nil {
		panic(err)
	}
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

// 所有用户并发关注同一个大 V，再重复一轮（幂等），最后取消一半，校验冗余计数
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	relSvc := service.NewRelationshipService(followRepo, fanRepo, notify.NewLocalNotifier(), cache.DirectLookup{Repo: userRepo})

	ctx := context.Background()
	N := envInt("N", 10000)
	CONC := envInt("CONC", 8)
	PAGE := envInt("PAGE", 50)

	// seed users: celeb is followed by everyone else
	celeb := model.User{ID: "celeb-" + uuid.NewString()[:8], Username: "celeb"}
	check(db.Create(&celeb).Error)
	users := make([]model.User, N)
	for i := range users {
		id := uuid.NewString()
		users[i] = model.User{ID: id, Username: "u" + id[:8]}
	}
	check(db.CreateInBatches(&users, 1000).Error)

	run := func(op func(context.Context, string, string) error, n int) ([]time.Duration, time.Duration, int) {
		recs := make([]time.Duration, n)
		feed := make(chan int, n)
		for i := 0; i < n; i++ {
			feed <- i
		}
		close(feed)
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			failed int
		)
		t0 := time.Now()
		for w := 0; w < CONC; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range feed {
					st := time.Now()
					if err := op(ctx, users[i].ID, celeb.ID); err != nil {
						mu.Lock()
						failed++
						mu.Unlock()
					}
					recs[i] = time.Since(st)
				}
			}()
		}
		wg.Wait()
		return recs, time.Since(t0), failed
	}

	followRecs, followDur, followFailed := run(relSvc.Follow, N)
	_, repeatDur, repeatFailed := run(relSvc.Follow, N)
	afterFollow := must(userRepo.Get(ctx, celeb.ID))

	q0 := time.Now()
	_, _ = relSvc.ListFans(ctx, celeb.ID, 1, PAGE)
	fansDur := time.Since(q0)
	q1 := time.Now()
	_, _ = relSvc.ListFollowing(ctx, users[0].ID, 1, PAGE)
	follDur := time.Since(q1)

	unfollowRecs, unfollowDur, unfollowFailed := run(relSvc.Unfollow, N/2)
	afterUnfollow := must(userRepo.Get(ctx, celeb.ID))

	fmt.Printf("N=%d, CONC=%d, PAGE=%d\n", N, CONC, PAGE)
	fmt.Printf("Follow total: %v, per op: %v, p50: %v, p95: %v, p99: %v, failed: %d\n",
		followDur, followDur/time.Duration(N), pct(followRecs, 0.50), pct(followRecs, 0.95), pct(followRecs, 0.99), followFailed)
	fmt.Printf("Repeat follow (no-op) total: %v, failed: %d\n", repeatDur, repeatFailed)
	fmt.Printf("Unfollow total: %v, p95: %v, failed: %d\n", unfollowDur, pct(unfollowRecs, 0.95), unfollowFailed)
	fmt.Printf("Query fans(%d) latency: %v\n", PAGE, fansDur)
	fmt.Printf("Query following(%d) latency: %v\n", PAGE, follDur)
	fmt.Printf("Counter after follow: %d (want %d), after unfollow: %d (want %d)\n",
		afterFollow.FollowerCount, N-followFailed, afterUnfollow.FollowerCount, N-followFailed-(N/2-unfollowFailed))
	if afterFollow.FollowerCount != int64(N-followFailed) {
		os.Exit(1)
	}
}
