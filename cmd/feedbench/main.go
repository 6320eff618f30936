package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
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

// 一个读者关注 AUTHORS 个作者，每人 REVIEWS 篇书评，测量整体重建关注流的耗时
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	AUTHORS := envInt("AUTHORS", 200)
	REVIEWS := envInt("REVIEWS", 20)
	CONC := envInt("CONC", cfg.Feed.MaxConcurrency)
	ROUNDS := envInt("ROUNDS", 20)

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	lookup := cache.DirectLookup{Repo: userRepo}
	relSvc := service.NewRelationshipService(followRepo, fanRepo, notify.NewLocalNotifier(), lookup)
	feedSvc := service.NewFeedService(userRepo, reviewRepo, followRepo, lookup, relSvc, service.FeedOptions{
		MaxConcurrency: CONC,
		FetchTimeout:   cfg.Feed.FetchTimeout,
	})

	ctx := context.Background()
	run := uuid.NewString()[:8]
	reader := model.User{ID: "reader-" + run, Username: "reader"}
	check(db.Create(&reader).Error)

	// half of the authors are referenced by backend id only
	authors := make([]model.User, AUTHORS)
	for i := range authors {
		id := uuid.NewString()
		authors[i] = model.User{ID: id, BackendID: run + "-" + strconv.Itoa(i), Username: "a" + id[:8]}
	}
	check(db.CreateInBatches(&authors, 500).Error)

	base := time.Now().UnixMilli()
	reviews := make([]model.Review, 0, AUTHORS*REVIEWS)
	for i, a := range authors {
		for j := 0; j < REVIEWS; j++ {
			rv := model.Review{
				ID:        uuid.NewString(),
				AlbumID:   fmt.Sprintf("album-%d", j),
				Content:   "bench",
				Score:     j % 11,
				CreatedAt: strconv.FormatInt(base-int64(i*REVIEWS+j), 10),
			}
			if i%2 == 0 {
				rv.AuthorUID = a.ID
			} else {
				rv.AuthorBackendID = a.BackendID
			}
			reviews = append(reviews, rv)
		}
	}
	check(db.CreateInBatches(&reviews, 1000).Error)
	for _, a := range authors {
		check(relSvc.Follow(ctx, reader.ID, a.ID))
	}

	recs := make([]time.Duration, 0, ROUNDS)
	var items int
	for r := 0; r < ROUNDS; r++ {
		st := time.Now()
		feed := must(feedSvc.FeedForUser(ctx, reader.ID))
		recs = append(recs, time.Since(st))
		items = len(feed)
	}

	var sum time.Duration
	for _, d := range recs {
		sum += d
	}
	fmt.Printf("AUTHORS=%d REVIEWS=%d CONC=%d ROUNDS=%d\n", AUTHORS, REVIEWS, CONC, ROUNDS)
	fmt.Printf("Feed build: items=%d (want %d) avg=%v p95=%v p99=%v\n",
		items, AUTHORS*REVIEWS, sum/time.Duration(len(recs)), pct(recs, 0.95), pct(recs, 0.99))
}
