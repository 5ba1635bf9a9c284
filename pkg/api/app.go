package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	redigo "github.com/garyburd/redigo/redis"
	"github.com/gorilla/mux"
	"github.com/jinzhu/gorm"
	_ "github.com/mattes/migrate/database/postgres" // must be first
	_ "github.com/mattes/migrate/source/file"       // must have for migrations
	"github.com/rs/cors"
	"github.com/urfave/negroni"
	redsync "gopkg.in/redsync.v1"

	"github.com/azzapp/billing-api/internal/api/transportutil"
	"github.com/azzapp/billing-api/internal/api/util"
	"github.com/azzapp/billing-api/internal/shared/apperrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/db/gormdb"
	"github.com/azzapp/billing-api/internal/shared/db/migrations"
	"github.com/azzapp/billing-api/internal/shared/db/redis"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/internal/shared/queue/aws/consumer"
	"github.com/azzapp/billing-api/internal/shared/queue/aws/sqs"
	"github.com/azzapp/billing-api/internal/shared/queue/consumers"
	"github.com/azzapp/billing-api/internal/shared/queue/producers"
	"github.com/azzapp/billing-api/pkg/api/entitlement"
	"github.com/azzapp/billing-api/pkg/api/rebill"
	"github.com/azzapp/billing-api/pkg/api/relay"
	"github.com/azzapp/billing-api/pkg/api/services/relayevents"
	"github.com/azzapp/billing-api/pkg/api/services/subscription"
	"github.com/azzapp/billing-api/pkg/api/store"
	"github.com/azzapp/billing-api/pkg/api/taxes"
	"github.com/azzapp/billing-api/pkg/api/workers/primaryqueue"
	"github.com/azzapp/billing-api/pkg/api/workers/primaryqueue/schedules"
)

type appServices struct {
	subscription subscription.Service
	relayevents  relayevents.Service
}

type queues struct {
	primarySQS    *sqs.Queue
	primaryDLQSQS *sqs.Queue

	producers struct {
		primaryMultiplexer *producers.Multiplexer
		orphanSchedules    *schedules.StopperProducer
	}
}

type App struct {
	cfg              config.Config
	log              logutil.Log
	trackedLog       logutil.Log
	errTracker       apperrors.Tracker
	gormDB           *gorm.DB
	sqlDB            *sql.DB
	migrationsRunner *migrations.Runner
	services         appServices
	awsSess          *session.Session
	queues           queues
	distLockFactory  *redsync.Redsync
	redisPool        *redigo.Pool

	st      store.Store
	gateway rebill.Client
	taxCalc *taxes.Calculator
	revoker entitlement.Revoker
}

func (a App) GetDB() *gorm.DB {
	return a.gormDB
}

//nolint:gocyclo
func (a *App) buildDeps() {
	if a.log == nil {
		slog := logutil.NewStderrLog("billing-api")
		slog.SetLevel(logutil.LogLevelInfo)
		a.log = slog
	}

	if a.cfg == nil {
		a.cfg = config.NewEnvConfig(a.log)
	}

	if a.errTracker == nil {
		a.errTracker = apperrors.GetTracker(a.cfg, a.log, "api")
	}
	if a.trackedLog == nil {
		a.trackedLog = apperrors.WrapLogWithTracker(a.log, nil, a.errTracker)
	}

	if a.gormDB == nil || a.sqlDB == nil {
		dbConnString, err := gormdb.GetDBConnString(a.cfg)
		if err != nil {
			a.log.Fatalf("Can't get DB conn string: %s", err)
		}

		if a.gormDB == nil {
			gormDB, err := gormdb.GetDB(a.cfg, a.trackedLog, dbConnString)
			if err != nil {
				a.log.Fatalf("Can't get DB: %s", err)
			}
			a.gormDB = gormDB
		}

		if a.sqlDB == nil {
			sqlDB, err := gormdb.GetSQLDB(a.cfg, dbConnString)
			if err != nil {
				a.log.Fatalf("Can't get DB: %s", err)
			}
			a.sqlDB = sqlDB
		}
	}

	if a.st == nil {
		a.st = store.NewGorm(a.gormDB)
	}

	if a.gateway == nil {
		gateway, err := rebill.NewHTTPClient(a.trackedLog, a.cfg)
		if err != nil {
			a.log.Fatalf("Can't build rebill gateway client: %s", err)
		}
		a.gateway = gateway
	}

	if a.taxCalc == nil {
		rates, err := taxes.NewHTTPRates(a.trackedLog, a.cfg)
		if err != nil {
			a.log.Fatalf("Can't build tax rates client: %s", err)
		}
		a.taxCalc = taxes.NewCalculator(a.trackedLog, rates)
	}

	if a.revoker == nil {
		revoker, err := entitlement.NewHTTPRevoker(a.trackedLog, a.cfg)
		if err != nil {
			a.log.Warnf("No entitlement revoker configured, unpublish calls will be dropped: %s", err)
			a.revoker = &entitlement.NopRevoker{}
		} else {
			a.revoker = revoker
		}
	}

	if a.redisPool == nil {
		redisPool, err := redis.GetPool(a.cfg)
		if err != nil {
			a.log.Fatalf("Can't get redis pool: %s", err)
		}
		a.redisPool = redisPool
	}
}

func (a *App) buildAwsSess() {
	awsCfg := aws.NewConfig().WithRegion("us-east-1")
	if a.cfg.GetBool("AWS_DEBUG", false) {
		awsCfg = awsCfg.WithLogLevel(aws.LogDebugWithHTTPBody)
	}
	endpoint := a.cfg.GetString("SQS_ENDPOINT")
	if endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint)
	}
	awsSess, err := session.NewSession(awsCfg)
	if err != nil {
		a.log.Fatalf("Can't make aws session: %s", err)
	}
	a.awsSess = awsSess
}

func (a *App) buildQueues() {
	a.queues.primarySQS = sqs.NewQueue(a.cfg.GetString("SQS_PRIMARY_QUEUE_URL"),
		a.awsSess, a.trackedLog, primaryqueue.VisibilityTimeoutSec)
	a.queues.primaryDLQSQS = sqs.NewQueue(a.cfg.GetString("SQS_PRIMARYDEADLETTER_QUEUE_URL"),
		a.awsSess, a.trackedLog, primaryqueue.VisibilityTimeoutSec)

	a.queues.producers.primaryMultiplexer = producers.NewMultiplexer(a.queues.primarySQS)

	orphanSchedules := &schedules.StopperProducer{}
	if err := orphanSchedules.Register(a.queues.producers.primaryMultiplexer); err != nil {
		a.log.Fatalf("Failed to create 'stop orphan schedule' producer: %s", err)
	}
	a.queues.producers.orphanSchedules = orphanSchedules
}

func (a *App) buildServices() {
	a.services.subscription = subscription.NewBasicService(a.cfg, a.st, a.gateway,
		a.taxCalc, a.queues.producers.orphanSchedules)

	processor := relay.NewEventProcessor(a.trackedLog, a.st, a.revoker)
	a.services.relayevents = relayevents.NewBasicService(a.cfg, processor)
}

func (a *App) buildMigrationsRunner() {
	a.distLockFactory = redsync.New([]redsync.Pool{a.redisPool})
	dbConnString, err := gormdb.GetDBConnString(a.cfg)
	if err != nil {
		a.log.Fatalf("Can't get DB conn string: %s", err)
	}
	a.migrationsRunner = migrations.NewRunner(a.distLockFactory.NewMutex("migrations"), a.trackedLog,
		dbConnString, util.GetProjectRoot())
}

func NewApp(modifiers ...Modifier) *App {
	a := App{}
	for _, m := range modifiers {
		m(&a)
	}
	a.buildDeps()
	a.buildAwsSess()
	a.buildQueues()
	a.buildServices()
	a.buildMigrationsRunner()

	return &a
}

func (a App) registerHandlers(r *mux.Router) {
	regCtx := transportutil.HandlerRegContext{
		Router:     r,
		Log:        a.log,
		ErrTracker: a.errTracker,
		Cfg:        a.cfg,
		DB:         a.gormDB,
	}
	subscription.RegisterHandlers(a.services.subscription, regCtx)
	relayevents.RegisterHandlers(a.services.relayevents, regCtx)
}

func (a App) runMigrations() {
	if err := a.migrationsRunner.Run(); err != nil {
		a.log.Fatalf("Can't run migrations: %s", err)
	}
}

func (a App) buildMultiplexedPrimaryQueueConsumer() *consumers.Multiplexer {
	multiplexer := consumers.NewMultiplexer()

	orphanStopper := schedules.NewStopperConsumer(a.trackedLog, a.gateway)
	if err := orphanStopper.Register(multiplexer, a.distLockFactory); err != nil {
		a.log.Fatalf("Failed to register orphan schedule stopper consumer: %s", err)
	}

	return multiplexer
}

func (a App) runConsumers() {
	primaryQueueConsumerMultiplexer := a.buildMultiplexedPrimaryQueueConsumer()
	primaryQueueConsumer := consumer.NewSQS(a.trackedLog, a.cfg, a.queues.primarySQS,
		primaryQueueConsumerMultiplexer, "primary", primaryqueue.VisibilityTimeoutSec)

	go primaryQueueConsumer.Run()
}

func (a App) RunDeadLetterConsumers() {
	primaryDLQConsumerMultiplexer := a.buildMultiplexedPrimaryQueueConsumer()
	primaryDLQConsumer := consumer.NewSQS(a.trackedLog, a.cfg, a.queues.primaryDLQSQS,
		primaryDLQConsumerMultiplexer, "primaryDeadLetter", primaryqueue.VisibilityTimeoutSec)

	primaryDLQConsumer.Run()
}

func (a App) RunEnvironment() {
	a.runMigrations()
	a.runConsumers()
}

func (a App) RunForever() {
	a.RunEnvironment()

	http.Handle("/", a.GetHTTPHandler())

	addr := fmt.Sprintf(":%d", a.cfg.GetInt("port", 3000))
	a.log.Infof("Listening on %s...", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		a.log.Errorf("Can't listen HTTP on %s: %s", addr, err)
		os.Exit(1)
	}
}

func (a App) GetHTTPHandler() http.Handler {
	r := mux.NewRouter()
	a.registerHandlers(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"https://azzapp.com", "https://dev.azzapp.com"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
	})

	n := negroni.Classic()
	n.Use(c)
	n.UseHandler(r)
	return n
}
