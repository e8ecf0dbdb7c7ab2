// README: Service entrypoint; wires storage, dispatch and the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxihub/internal/config"
	apphttp "taxihub/internal/http"
	"taxihub/internal/infra"
	"taxihub/internal/logger"
	"taxihub/internal/logincode"
	"taxihub/internal/maps"
	"taxihub/internal/modules/chat"
	"taxihub/internal/modules/dispatch"
	"taxihub/internal/modules/filter"
	"taxihub/internal/modules/location"
	"taxihub/internal/modules/order"
	"taxihub/internal/modules/promo"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/user"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewDB(ctx, cfg.DB.DSN, log)
	if err != nil {
		log.Error("database init failed", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	rdb := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer rdb.Close()

	userStore := user.NewStore(db)
	tariffStore := tariff.NewStore(db)
	sectorStore := location.NewStore(db)
	presence := location.NewPresence(rdb)
	filterSvc := filter.NewService(filter.NewPGStore(db))
	promoSvc := promo.NewService(promo.NewPGStore(db))
	loginCodes := logincode.NewStore(rdb, time.Duration(cfg.LoginCode.TTLSeconds)*time.Second)
	chatStore := chat.NewStore(rdb)

	var pusher dispatch.Pusher = logPusher{log: log}
	if cfg.Firebase.CredentialsFile != "" {
		msg, err := infra.NewMessaging(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Error("firebase init failed", logger.Error(err))
			os.Exit(1)
		}
		pusher = dispatch.NewFCMPusher(msg)
	}
	pushPool := dispatch.NewPushPool(pusher, cfg.Dispatch.PushWorkers, cfg.Dispatch.PushQueue, log)
	pushPool.Start(ctx)

	dispatchSvc := dispatch.NewService(dispatch.Deps{
		Presence: presence,
		Filters:  filterSvc,
		Sectors:  sectorStore,
		Tokens:   userStore,
		Ledger:   dispatch.NewRedisLedger(rdb),
		Pool:     pushPool,
		RadiusKm: cfg.Dispatch.RadiusKm,
		Log:      log,
	})

	var route order.RouteEstimator
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Error("maps init failed", logger.Error(err))
			os.Exit(1)
		}
		route = rs
	}

	orderSvc := order.NewService(order.Deps{
		Store:       order.NewPGStore(db),
		Tariffs:     tariffStore,
		Promo:       promoSvc,
		Route:       route,
		Broadcaster: dispatchSvc,
		Activity:    userStore,
		Chat:        chatStore,
		Drivers:     userStore,
		Log:         log,
	})
	dispatchSvc.BindOffers(orderSvc)

	monitor := order.NewMonitor(
		orderSvc,
		time.Duration(cfg.Dispatch.TickSeconds)*time.Second,
		time.Duration(cfg.Dispatch.OfferTimeout)*time.Second,
		log,
	)
	go monitor.Run(ctx)

	router := apphttp.NewRouter(apphttp.RouterDeps{
		Order:      orderSvc,
		Filters:    filterSvc,
		Promo:      promoSvc,
		Tariffs:    tariffStore,
		Sectors:    sectorStore,
		Users:      userStore,
		Presence:   presence,
		Chat:       chatStore,
		LoginCodes: loginCodes,
		CodeSender: logSender{log: log},
		JWTSecret:  cfg.Auth.JWTSecret,
		Log:        log,
	})

	srv := apphttp.NewServer(cfg.HTTP.Addr, router, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("http server failed", logger.Error(err))
		os.Exit(1)
	}
	pushPool.Wait()
	log.Info("shutdown complete")
}

// logPusher stands in for FCM when no credentials are configured.
type logPusher struct {
	log logger.ILogger
}

func (p logPusher) Push(_ context.Context, token string, n dispatch.Notification) error {
	p.log.Info("push (dry run)", logger.String("token", token), logger.String("title", n.Title))
	return nil
}

// logSender stands in for an SMS gateway in development.
type logSender struct {
	log logger.ILogger
}

func (s logSender) Send(_ context.Context, phone, code string) error {
	s.log.Info("login code issued", logger.String("phone", phone), logger.String("code", code))
	return nil
}
