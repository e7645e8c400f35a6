package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	contactmem "github.com/glimchat/glim/internal/adapter/driven/contact/memory"
	presencemem "github.com/glimchat/glim/internal/adapter/driven/presence/memory"
	handler "github.com/glimchat/glim/internal/adapter/driving/http"
	"github.com/glimchat/glim/internal/core/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Addr          string        `env:"GLIM_ADDR,default=:8080"`
	RingTimeout   time.Duration `env:"GLIM_RING_TIMEOUT,default=60s"`
	SendBuffer    int           `env:"GLIM_SEND_BUFFER,default=32"`
	AllowedOrigin string        `env:"GLIM_ALLOWED_ORIGIN"`
	LogLevel      string        `env:"GLIM_LOG_LEVEL,default=info"`
}

func main() {
	_ = godotenv.Load()

	var cfg Config
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	log.Logger = l

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	presence := presencemem.NewRegistry()
	contacts := contactmem.NewDirectory()
	rooms := service.NewRoomRegistry()
	coordinator := service.NewCoordinator(rooms, presence, contacts, cfg.RingTimeout)

	h := handler.NewHandler(coordinator, presence, cfg.SendBuffer, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info().Str("addr", cfg.Addr).Dur("ring_timeout", cfg.RingTimeout).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		l.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("Server exited with error")
		return
	}
	l.Info().Msg("Server exited")
}
