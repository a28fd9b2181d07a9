package main

import (
	"crypto/tls"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/api"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/config"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/engine"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/focalboard"
	"github.com/BACON-AI-CLOUD/bacon-ai-boards/templates"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	store := templates.NewStore(cfg.TemplateRoot, logger)
	client := focalboard.NewClient(focalboard.Config{
		BaseURL: cfg.Focalboard.URL,
		Token:   cfg.Focalboard.Token,
		Timeout: cfg.Focalboard.Timeout,
	}, logger)

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		parts := strings.Split(cfg.Redis.URL, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	deduper := api.NewRedisDeduper(redis.NewClient(redisOpts), cfg.Redis.DedupeTTL)

	authCfg := api.AuthConfig{
		Audience:    cfg.Auth.Audience,
		KeyCacheTTL: cfg.Auth.JWKSCacheTTL,
	}
	if cfg.Auth.TestMode {
		authCfg.TestMode = true
		authCfg.TestSecret = []byte(cfg.Auth.TestSecret)
	} else {
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		authCfg.JWKS = jwks
		authCfg.Issuer = cfg.Auth.Issuer()
	}
	auth := api.NewAuth(authCfg)

	instantiator := engine.NewInstantiator(store, client, logger, cfg.Workers)
	deps := api.Deps{
		Catalog:      store,
		Instantiator: instantiator,
		Syncer:       engine.NewSyncEngine(store, client, logger),
		Tracker:      engine.NewTrackingStore(store, client, logger),
		Exporter:     engine.NewExporter(store, client, logger),
		Pinger:       client,
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, deps, auth, deduper, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
