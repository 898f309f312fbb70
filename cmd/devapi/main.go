// 開発用リモートAPIのエントリポイント。
// 管理コンソールが呼び出すログイン・利用者・動物・養子縁組履歴のAPIをローカルで提供する。
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nao1215/petadmin/internal/config"
	"github.com/nao1215/petadmin/internal/devapi"
	"github.com/nao1215/petadmin/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	logger.Setup(cfg.LogLevel)
	if err := cfg.DevAPI.Validate(); err != nil {
		log.Fatal().Err(err).Msg("設定が不正です")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := devapi.OpenStore(log.Logger.WithContext(ctx), cfg.DevAPI.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("データベースの初期化に失敗")
	}
	defer store.Close()

	server := devapi.NewServer(store, devapi.Options{
		JWTSecret:      cfg.DevAPI.JWTSecret,
		TokenTTL:       cfg.DevAPI.TokenTTL,
		AllowedOrigins: cfg.DevAPI.AllowedOrigins,
	})

	if cfg.DevAPI.SeedAdmin() {
		created, err := server.SeedAdmin(ctx, cfg.DevAPI.AdminEmail, cfg.DevAPI.AdminPassword, cfg.DevAPI.AdminName)
		if err != nil {
			log.Fatal().Err(err).Msg("管理者の登録に失敗")
		}
		if created {
			log.Info().Str("email", cfg.DevAPI.AdminEmail).Msg("管理者を登録しました")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.DevAPI.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.DevAPI.Port).Msg("開発用APIを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("開発用APIの起動に失敗")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("終了シグナルを受信しました")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("開発用APIの停止に失敗")
	}
}
