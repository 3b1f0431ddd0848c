package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/newsletter-service/internal/api/http"
	"github.com/spec-kit/newsletter-service/internal/api/http/handlers"
	"github.com/spec-kit/newsletter-service/internal/email"
	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/observability"
	"github.com/spec-kit/newsletter-service/internal/persistence"
	"github.com/spec-kit/newsletter-service/internal/repository"
	"github.com/spec-kit/newsletter-service/internal/service"
	"github.com/spec-kit/newsletter-service/internal/worker"
)

const publishLockPrefix = "newsletter:publish:"

type stores struct {
	subscribers repository.SubscriberRepository
	tokens      repository.SubscriptionTokenRepository
	issues      repository.IssueRepository
}

func openStores(ctx context.Context, rt bootstrap, pg *persistence.Postgres) (stores, error) {
	if !pg.Configured() {
		memory := repository.NewMemoryStore()
		return stores{subscribers: memory, tokens: memory, issues: memory}, nil
	}

	if rt.cfg.Postgres.RunMigrations {
		if err := pg.Migrate(ctx, rt.cfg.Postgres.MigrationsDir, rt.logger); err != nil {
			return stores{}, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool := pg.PoolHandle()
	return stores{
		subscribers: repository.NewSubscriberRepository(pool),
		tokens:      repository.NewCachedTokenRepository(repository.NewSubscriptionTokenRepository(pool), rt.cfg.Subscription.TokenCacheTTL),
		issues:      repository.NewIssueRepository(pool),
	}, nil
}

func serve(ctx context.Context, rt bootstrap) error {
	cfg, logger := rt.cfg, rt.logger

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st, err := openStores(ctx, rt, pg)
	if err != nil {
		return err
	}

	emailClient, err := email.NewClient(ctx, cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("init email client: %w", err)
	}

	metrics := observability.NewMetrics(nil)
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartEventListener(dispatcher, metrics, logger)

	var locker service.PublishLocker
	if redis.Configured() {
		locker = redis.Locker(publishLockPrefix)
	}

	subscriptionService := service.NewSubscriptionService(service.SubscriptionDependencies{
		SubscriberRepo: st.subscribers,
		EmailClient:    emailClient,
		Dispatcher:     dispatcher,
		Logger:         logger,
		BaseURL:        cfg.Subscription.BaseURL,
	})
	confirmationService := service.NewConfirmationService(service.ConfirmationDependencies{
		TokenRepo:      st.tokens,
		SubscriberRepo: st.subscribers,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	newsletterDispatcher := service.NewNewsletterDispatcher(cfg.Dispatch, service.DispatcherDependencies{
		SubscriberRepo: st.subscribers,
		IssueRepo:      st.issues,
		EmailClient:    emailClient,
		Locker:         locker,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, requestTimeout(cfg.App.RequestTimeout(), cfg.Dispatch.Timeout))
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Subscriptions: handlers.NewSubscriptionsHandler(subscriptionService, confirmationService),
		Newsletters:   handlers.NewNewslettersHandler(newsletterDispatcher),
		Metrics:       metrics.Handler(),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fiber listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(cfg.Dispatch.Timeout + 5*time.Second)
}

// requestTimeout never cuts a publish shorter than its own dispatch timeout.
func requestTimeout(request, dispatch time.Duration) time.Duration {
	if request <= 0 || dispatch <= 0 {
		return request
	}
	if floor := dispatch + 5*time.Second; request < floor {
		return floor
	}
	return request
}
