// 管理コンソールのエントリポイント。
// ブラウザからのアクセスを受け付け、リモートAPIをログイン中のセッションで呼び出す。
// セッションはローカルのSQLiteファイルに保存し、再起動しても維持する。
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/nao1215/petadmin/internal/config"
	"github.com/nao1215/petadmin/internal/console"
	"github.com/nao1215/petadmin/pkg/event"
	"github.com/nao1215/petadmin/pkg/httpclient"
	"github.com/nao1215/petadmin/pkg/logger"
	"github.com/nao1215/petadmin/pkg/metrics"
	"github.com/nao1215/petadmin/pkg/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	logger.Setup(cfg.LogLevel)
	if err := cfg.Console.Validate(); err != nil {
		log.Fatal().Err(err).Msg("設定が不正です")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := session.OpenSQLite(ctx, cfg.Console.SessionDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("セッションストアの初期化に失敗")
	}
	defer store.Close()

	unsubscribe := store.Subscribe(func(ev *event.Event) {
		log.Info().Str("event", string(ev.EventType)).Msg("session changed")
	})
	defer unsubscribe()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api := httpclient.New(cfg.Console.APIBaseURL, store,
		httpclient.WithLogger(log.Logger),
		httpclient.WithObserver(metrics.NewGateway(reg)),
	)

	server, err := console.NewServer(api, store, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("コンソールサーバーの初期化に失敗")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Console.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Console.Port).
			Str("api", api.BaseURL()).
			Msg("コンソールを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("コンソールの起動に失敗")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("終了シグナルを受信しました")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("コンソールの停止に失敗")
	}
}
