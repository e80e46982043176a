package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/eslsoft/chordnet/internal/adapter/httpapi"
	adapterrepo "github.com/eslsoft/chordnet/internal/adapter/repository"
	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/infrastructure/config"
	"github.com/eslsoft/chordnet/internal/infrastructure/database"
	"github.com/eslsoft/chordnet/internal/infrastructure/events"
	"github.com/eslsoft/chordnet/internal/infrastructure/metrics"
	"github.com/eslsoft/chordnet/internal/infrastructure/reminder"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/internal/usecase"
	"github.com/eslsoft/chordnet/internal/usecase/backup"
	"github.com/eslsoft/chordnet/internal/usecase/catalog"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/mastery"
	"github.com/eslsoft/chordnet/internal/usecase/report"
	"github.com/eslsoft/chordnet/internal/usecase/selection"
	"github.com/eslsoft/chordnet/internal/usecase/session"
	"github.com/eslsoft/chordnet/internal/usecase/srs"
)

// Store backends.
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

// NewMatcher builds the chord matcher from the trainer settings. Zero values
// keep the stock parameters.
func NewMatcher(cfg *config.Config) (*chord.Matcher, error) {
	mc := chord.DefaultConfig()
	if cfg.Trainer.BaseMaxDurationMs != 0 {
		mc.BaseMaxDurationMs = cfg.Trainer.BaseMaxDurationMs
	}
	if cfg.Trainer.TimingTolerance != 0 {
		mc.TimingToleranceMultiplier = cfg.Trainer.TimingTolerance
	}
	if cfg.Trainer.ShortInputMaxLen != 0 {
		mc.ShortInputMaxLen = cfg.Trainer.ShortInputMaxLen
	}
	return chord.NewMatcher(mc)
}

// NewClassifier returns the mastery classifier.
func NewClassifier() *mastery.Classifier {
	return mastery.Default()
}

// NewScheduler applies the configured interval caps and failure grades to the
// stock interval tables.
func NewScheduler(cfg *config.Config, classifier *mastery.Classifier) (*srs.Scheduler, error) {
	sc := srs.DefaultConfig()
	if d := cfg.Scheduler.MaxIntervalMasteredDays; d != 0 {
		sc.MaxIntervalMastered = entity.DaysToDuration(d)
	}
	if d := cfg.Scheduler.MaxIntervalNotMasteredDays; d != 0 {
		sc.MaxIntervalNotMastered = entity.DaysToDuration(d)
	}
	sc.Failure = srs.FailureQualities{
		FirstAttempt: srs.Quality(cfg.Scheduler.FirstAttemptQuality),
		Revealed:     srs.Quality(cfg.Scheduler.RevealedQuality),
		Retry:        srs.Quality(cfg.Scheduler.RetryQuality),
	}
	return srs.NewScheduler(sc, classifier)
}

// NewWeighter builds the selection weighter.
func NewWeighter(cfg *config.Config) (*selection.Weighter, error) {
	return selection.NewWeighter(selection.Config{
		MinBaseWeight:       cfg.Selection.MinBaseWeight,
		FailedMultiplier:    cfg.Selection.FailedMultiplier,
		OverdueBoostPerDay:  cfg.Selection.OverdueBoostPerDay,
		LowAttemptThreshold: cfg.Selection.LowAttemptThreshold,
		LowAttemptBonus:     cfg.Selection.LowAttemptBonus,
	})
}

// SessionConfig builds the settings of a practice session in mode.
func SessionConfig(cfg *config.Config, mode session.Mode) (session.Config, error) {
	sc := session.DefaultConfig(mode)
	if cfg.Trainer.TimeLimit != 0 {
		sc.TimeLimit = cfg.Trainer.TimeLimit
	}
	if cfg.Trainer.FeedbackDelay != 0 {
		sc.FeedbackDelay = cfg.Trainer.FeedbackDelay
	}
	if cfg.Trainer.SettleDelay != 0 {
		sc.SettleDelay = cfg.Trainer.SettleDelay
	}
	if cfg.Trainer.MaxAttempts != 0 {
		sc.MaxAttempts = cfg.Trainer.MaxAttempts
	}
	sc.Lives = cfg.Trainer.Lives
	if err := sc.Validate(); err != nil {
		return session.Config{}, err
	}
	return sc, nil
}

// NewCatalog loads the configured catalog file or falls back to the built-in
// catalog.
func NewCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.LoadOrDefault(cfg.Catalog.File)
}

// NewProgressRepository opens the configured store backend.
func NewProgressRepository(cfg *config.Config, logger *logrus.Logger) (repository.ProgressRepository, func(), error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend)); backend {
	case "", BackendSQL:
		db, cleanup, err := database.NewDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{"backend": BackendSQL, "driver": db.Driver}).Debug("progress store opened")
		return adapterrepo.NewSQLProgressRepository(db), cleanup, nil
	case BackendRedis:
		client, cleanup, err := NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{"backend": BackendRedis, "addr": cfg.Redis.Addr}).Debug("progress store opened")
		return adapterrepo.NewRedisProgressRepository(client, cfg.Redis.Prefix), cleanup, nil
	case BackendMongo:
		client, cleanup, err := NewMongoClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{"backend": BackendMongo, "database": cfg.Mongo.Database}).Debug("progress store opened")
		return adapterrepo.NewMongoProgressRepository(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", entity.ErrInvalidConfig, cfg.Store.Backend)
	}
}

// NewRedisClient connects to the configured redis and verifies the connection.
func NewRedisClient(cfg *config.Config) (redis.UniversalClient, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// NewMongoClient connects to the configured mongo deployment and verifies the
// connection.
func NewMongoClient(cfg *config.Config) (*mongo.Client, func(), error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, disconnect, nil
}

// NewEventPublisher connects the attempt event publisher. It is a no-op when
// no broker is configured.
func NewEventPublisher(cfg *config.Config, logger *logrus.Logger) (*events.Publisher, func(), error) {
	publisher, err := events.NewPublisher(cfg.Events, logger.WithField("component", "events"))
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.WithError(err).Warn("close event publisher")
		}
	}, nil
}

// NewAttemptObserver fans scored attempts out to metrics and the event
// publisher.
func NewAttemptObserver(recorder *metrics.Recorder, publisher *events.Publisher) usecase.AttemptObserver {
	return usecase.Observers{recorder, publisher}
}

// NewProgressUsecase wires the progress usecase with logging and metrics.
func NewProgressUsecase(
	repo repository.ProgressRepository,
	scheduler *srs.Scheduler,
	classifier *mastery.Classifier,
	weighter *selection.Weighter,
	observer usecase.AttemptObserver,
	logger *logrus.Logger,
) usecase.ProgressUsecase {
	return usecase.NewProgressUsecase(repo, scheduler, classifier, weighter,
		usecase.WithProgressLogger(logger),
		usecase.WithAttemptObserver(observer),
	)
}

// NewBackupService builds the export/import service.
func NewBackupService(cfg *config.Config, repo repository.ProgressRepository) (*backup.Service, error) {
	return backup.NewService(repo, backup.WithBatchSize(cfg.Backup.BatchSize))
}

// NewReportWriter builds the xlsx report writer.
func NewReportWriter(classifier *mastery.Classifier) *report.Writer {
	return report.NewWriter(classifier)
}

// NewReminder builds the due reminder, or returns nil when it is disabled.
func NewReminder(cfg *config.Config, progress usecase.ProgressUsecase, recorder *metrics.Recorder, logger *logrus.Logger) (*reminder.Reminder, error) {
	if !cfg.Reminder.Enabled {
		return nil, nil
	}
	return reminder.New(progress, cfg.Reminder.Interval, logger.WithField("component", "reminder"), recorder)
}

// NewHTTPHandler builds the JSON API with per-route metrics.
func NewHTTPHandler(progress usecase.ProgressUsecase, matcher *chord.Matcher, cat *catalog.Catalog, logger *logrus.Logger) http.Handler {
	return httpapi.NewHandler(progress, matcher, cat,
		httpapi.WithLogger(logger),
		httpapi.WithRouteMiddleware(metrics.Instrument),
	)
}
