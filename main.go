package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"planehook/internal"
	"planehook/pkg/discord"
	"planehook/pkg/plane"
	"planehook/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  config.Rules,
		Strict: config.RulesStrict,
		Logger: internal.NewLogger("rules"),
	})
	if err != nil {
		logger.Fatalf("compile rules: %v", err)
	}

	archiver, err := internal.NewArchiver(config.Archive)
	if err != nil {
		logger.Fatalf("archiver: %v", err)
	}
	defer archiver.Close()

	avatars := plane.NewAvatarFetcher(
		config.Plane.BaseURL,
		config.Plane.APIToken,
		time.Duration(config.Plane.AvatarTimeoutMS)*time.Millisecond,
		internal.NewLogger("plane"),
	)

	relay := discord.NewClient(
		config.Discord.WebhookURL,
		time.Duration(config.Discord.TimeoutMS)*time.Millisecond,
		internal.NewLogger("discord"),
	)

	handler := webhook.NewPlaneHandler(
		ruleEngine,
		archiver,
		config.Archive.Topic,
		avatars,
		relay,
		internal.NewLogger("webhook"),
	)

	mux := http.NewServeMux()
	mux.Handle(config.Server.WebhookPath, handler)
	mux.HandleFunc(config.Server.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
	}
	logger.Printf("plane webhook enabled on %s", config.Server.WebhookPath)

	var root http.Handler = mux
	root = http.MaxBytesHandler(root, config.Server.MaxBodyBytes)
	root = internal.NewRateLimitHandler(root, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
