package router

import (
	"context"
	"fmt"

	"course-checkout/internal/api/handlers"
	"course-checkout/internal/config"
	"course-checkout/internal/infrastructure/cache"
	"course-checkout/internal/infrastructure/database"
	"course-checkout/internal/infrastructure/gateway"
	"course-checkout/internal/infrastructure/metrics"
	"course-checkout/internal/infrastructure/queue"
	"course-checkout/internal/infrastructure/repository"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"course-checkout/internal/service"
	"course-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// Components is the wired application: the HTTP router plus the background
// pieces the serve command starts and stops.
type Components struct {
	Router       *gin.Engine
	QueueService interfaces.QueueService
	Coordinator  *service.PaymentCoordinator
	Sweeper      *service.ExpirySweeper
	Metrics      *metrics.Metrics

	closers []func() error
}

// Close releases connections opened by NewCheckoutComponents.
func (c *Components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type stores struct {
	students        interfaces.StudentRepository
	courses         interfaces.CourseRepository
	registrations   interfaces.RegistrationRepository
	reconciliations interfaces.ReconciliationRepository
	memory          *repository.MemoryStore
}

// NewCheckoutComponents wires repositories, cache, queue, gateway and
// services from cfg. db may be nil only with the memory database driver.
// Queue workers are attached but not started.
func NewCheckoutComponents(cfg *config.Config, db *gorm.DB) (*Components, error) {
	m := metrics.New()
	components := &Components{Metrics: m}

	st, err := newStores(cfg, db)
	if err != nil {
		return nil, err
	}

	var (
		sessions    interfaces.SessionCache
		dedup       interfaces.EventDeduplicator
		redisClient redis.UniversalClient
	)
	if cfg.Cache.Type == "redis" {
		redisCache := cache.NewRedisCache(cache.Options{
			Addr:       fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port),
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			PoolSize:   cfg.Cache.PoolSize,
			MaxRetries: cfg.Cache.MaxRetries,
		})
		components.closers = append(components.closers, redisCache.Close)
		redisClient = redisCache.GetClient()
		sessions = redisCache
		dedup = repository.NewRedisEventDeduplicator(redisClient, cfg.Cache.DedupTTL)
		logger.Info("Using Redis session cache and event dedup")
	} else {
		sessions = cache.NewMemoryCache()
		memory := st.memory
		if memory == nil {
			memory = repository.NewMemoryStore()
		}
		dedup = memory.EventDeduplicator(cfg.Cache.DedupTTL)
		logger.Info("Using in-memory session cache and event dedup")
	}

	var queueService interfaces.QueueService
	if cfg.Queue.Type == "redis" {
		if redisClient == nil {
			return nil, fmt.Errorf("queue.type redis requires cache.type redis")
		}
		queueService = queue.NewRedisQueue(redisClient, cfg.Queue.Workers, cfg.Queue.MaxAttempts)
		logger.Info("Using Redis queue service")
	} else {
		queueService = queue.NewInMemoryQueue(cfg.Queue.BufferSize, cfg.Queue.Workers, cfg.Queue.MaxAttempts)
		logger.Info("Using in-memory queue service")
	}

	gatewayCfg := gateway.Config{
		Provider:       cfg.Payment.Provider,
		SecretKey:      cfg.Payment.SecretKey,
		PublishableKey: cfg.Payment.PublishableKey,
		WebhookSecret:  cfg.Payment.WebhookSecret,
		APIURL:         cfg.Payment.APIURL,
		SuccessURL:     cfg.Payment.SuccessURL,
		CancelURL:      cfg.Payment.CancelURL,
		RequestTimeout: cfg.Payment.RequestTimeout,
		SessionTTL:     cfg.Payment.SessionTTL,
		Retry: gateway.RetryPolicy{
			MaxRetries:      cfg.Payment.Retry.MaxRetries,
			InitialInterval: cfg.Payment.Retry.InitialInterval,
			MaxInterval:     cfg.Payment.Retry.MaxInterval,
		},
	}
	paymentGateway, err := gateway.New(gatewayCfg, m)
	if err != nil {
		return nil, err
	}
	logger.Info("Using %s payment gateway", cfg.Payment.Provider)

	registrationService := service.NewRegistrationService(st.students, st.courses, st.registrations, m, service.RegistrationConfig{
		PendingTTL:         cfg.Registration.PendingTTL,
		MaxConflictRetries: cfg.Registration.MaxConflictRetries,
	})
	reconciliationService := service.NewReconciliationService(st.reconciliations, m, nil)
	coordinator := service.NewPaymentCoordinator(
		registrationService,
		st.registrations,
		st.courses,
		paymentGateway,
		sessions,
		reconciliationService,
		m,
		service.CoordinatorConfig{
			SessionTTL:      cfg.Payment.SessionTTL,
			PollTimeout:     cfg.Sweeper.PollTimeout,
			SweepBatchSize:  cfg.Sweeper.BatchSize,
			SessionCacheTTL: cfg.Cache.SessionTTL,
			DefaultCurrency: cfg.Payment.Currency,
		},
	)
	studentService := service.NewStudentService(st.students)

	queueService.SetEventHandler(coordinator)

	checkers := map[string]handlers.HealthChecker{
		"cache": sessions.Health,
	}
	if db != nil {
		checkers["database"] = func(ctx context.Context) error {
			return database.HealthCheck(db)
		}
	}

	components.Router = NewRouter(Handlers{
		Health:       handlers.NewHealthHandler(cfg.App.Version, checkers),
		Student:      handlers.NewStudentHandler(studentService),
		Registration: handlers.NewRegistrationHandler(registrationService, coordinator, reconciliationService, cfg.Payment.PublishableKey),
		Webhook:      handlers.NewWebhookHandler(gateway.NewEventParser(gatewayCfg), dedup, queueService, m),
	}, m)
	components.QueueService = queueService
	components.Coordinator = coordinator
	components.Sweeper = service.NewExpirySweeper(coordinator, cfg.Sweeper.Interval)

	return components, nil
}

func newStores(cfg *config.Config, db *gorm.DB) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		memory := repository.NewMemoryStore()
		memory.SeedDemoData()
		logger.Warn("Using in-memory store with demo data; nothing is persisted")
		return &stores{
			students:        memory.Students(),
			courses:         memory.Courses(),
			registrations:   memory.Registrations(),
			reconciliations: memory.Reconciliations(),
			memory:          memory,
		}, nil
	}

	if db == nil {
		return nil, fmt.Errorf("database driver %q needs a connection", cfg.Database.Driver)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	return &stores{
		students:        repository.NewStudentRepository(db),
		courses:         repository.NewCourseRepository(sqlx.NewDb(sqlDB, "postgres")),
		registrations:   repository.NewRegistrationRepository(db),
		reconciliations: repository.NewReconciliationRepository(db),
	}, nil
}
