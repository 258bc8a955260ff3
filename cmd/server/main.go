package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"price-digest-bot/internal/api"
	"price-digest-bot/internal/cache"
	"price-digest-bot/internal/config"
	"price-digest-bot/internal/digest"
	"price-digest-bot/internal/feed"
	"price-digest-bot/internal/push/telegram"
	"price-digest-bot/internal/store"

	"github.com/cloudwego/hertz/pkg/app/server"
)

func main() {
	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))

	tg := telegram.NewClient(
		cfg.Push.Telegram.Token,
		cfg.Push.Telegram.ChatID,
		time.Duration(cfg.Push.Telegram.TimeoutMs)*time.Millisecond,
	)

	priceCache, err := cache.New(context.Background(), cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
	if err != nil {
		log.Fatalf("cache error: %v", err)
	}
	defer func() {
		if err := priceCache.Close(); err != nil {
			log.Printf("cache close error: %v", err)
		}
	}()

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	feedClient := feed.NewClient(
		cfg.Feed.URL,
		cfg.Feed.ClientName,
		time.Duration(cfg.Feed.TimeoutMs)*time.Millisecond,
	)

	symbols := make([]digest.Symbol, 0, len(cfg.Digest.Symbols))
	for _, sc := range cfg.Digest.Symbols {
		symbols = append(symbols, digest.Symbol{
			Symbol: sc.Symbol,
			Title:  sc.Title,
			Unit:   sc.Unit,
			Factor: sc.Factor,
		})
	}

	svc := digest.NewService(
		feedClient,
		priceCache,
		tg,
		st,
		symbols,
		time.Duration(cfg.Digest.YesterdayTTLSec)*time.Second,
	)

	if cfg.Digest.IntervalSec > 0 && len(symbols) > 0 {
		go svc.RunLoop(time.Duration(cfg.Digest.IntervalSec) * time.Second)
	}

	api.RegisterRoutes(h, svc, tg, st)

	log.Printf("server starting on %s (log.level=%s, symbols=%d)", addr, cfg.Log.Level, len(symbols))
	if err := h.Run(); err != nil {
		log.Fatalf("server run error: %v", err)
	}
}
