package main

import (
	"context"
	"github.com/joho/godotenv"
	"github.com/myrjola/casegen/internal/ai"
	"github.com/myrjola/casegen/internal/broker"
	"github.com/myrjola/casegen/internal/envstruct"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/myrjola/casegen/internal/imagegen"
	"github.com/myrjola/casegen/internal/logging"
	"github.com/myrjola/casegen/internal/pprofserver"
	"github.com/myrjola/casegen/internal/repositories"
	"github.com/myrjola/casegen/internal/sqlite"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type application struct {
	logger *slog.Logger
	db     *sqlite.Database
	runs   *repositories.RunRepository
	cases  *repositories.CaseRepository
	runner *runner
	// images is nil when the images are uploaded to S3.
	images *imagegen.MemoryStore
}

type config struct {
	// Addr is the address the HTTP server listens on. Use port 0 for a random port.
	Addr string `env:"CASEGEN_ADDR" envDefault:"localhost:4000"`
	// PprofAddr enables the pprof server on the given loopback address, e.g. "[::1]:6060".
	PprofAddr string `env:"CASEGEN_PPROF_ADDR" envDefault:""`
	SqliteURL string `env:"CASEGEN_SQLITE_URL" envDefault:"./casegen.sqlite"`

	// Provider and Credential are used by runs that don't bring their own.
	Provider       string        `env:"CASEGEN_PROVIDER"        envDefault:"openai"`
	Credential     string        `env:"CASEGEN_CREDENTIAL"      envDefault:"simulation"`
	OpenAIModel    string        `env:"CASEGEN_OPENAI_MODEL"    envDefault:"gpt-4-turbo-preview"`
	GeminiModel    string        `env:"CASEGEN_GEMINI_MODEL"    envDefault:"gemini-2.0-flash"`
	AnthropicModel string        `env:"CASEGEN_ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-latest"`
	MaxTokens      int           `env:"CASEGEN_MAX_TOKENS"      envDefault:"8192"`
	AITimeout      time.Duration `env:"CASEGEN_AI_TIMEOUT"      envDefault:"3m"`

	// ImageCredential is the OpenAI key for evidence images. Runs on the openai provider fall back to their own
	// credential when it is empty.
	ImageCredential string        `env:"CASEGEN_IMAGE_CREDENTIAL"  envDefault:""`
	ImageBatchSize  int           `env:"CASEGEN_IMAGE_BATCH_SIZE"  envDefault:"3"`
	ImageBatchDelay time.Duration `env:"CASEGEN_IMAGE_BATCH_DELAY" envDefault:"2s"`
	// ImageBaseURL prefixes the URLs of images kept in memory when S3 is not configured.
	ImageBaseURL string `env:"CASEGEN_IMAGE_BASE_URL" envDefault:"/images"`

	S3Endpoint  string        `env:"CASEGEN_S3_ENDPOINT"   envDefault:""`
	S3Region    string        `env:"CASEGEN_S3_REGION"     envDefault:"us-east-1"`
	S3AccessKey string        `env:"CASEGEN_S3_ACCESS_KEY" envDefault:""`
	S3SecretKey string        `env:"CASEGEN_S3_SECRET_KEY" envDefault:""`
	S3Bucket    string        `env:"CASEGEN_S3_BUCKET"     envDefault:"casegen"`
	S3UseSSL    bool          `env:"CASEGEN_S3_USE_SSL"    envDefault:"true"`
	S3URLExpiry time.Duration `env:"CASEGEN_S3_URL_EXPIRY" envDefault:"168h"`

	CaseCacheSize int `env:"CASEGEN_CASE_CACHE_SIZE" envDefault:"128"`
}

// interruptedMessage is the failure of runs that were cut short by a restart.
const interruptedMessage = "The server restarted before the case was finished. Please try again."

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cfg config
		err error
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	if cfg.PprofAddr != "" {
		pprofserver.Launch(ctx, cfg.PprofAddr, logger)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		return errors.Wrap(err, "open database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	runs := repositories.NewRunRepository(db, logger)
	if _, err = runs.FailUnfinished(ctx, interruptedMessage); err != nil {
		return errors.Wrap(err, "fail interrupted runs")
	}
	var cases *repositories.CaseRepository
	if cases, err = repositories.NewCaseRepository(db, logger, cfg.CaseCacheSize); err != nil {
		return errors.Wrap(err, "create case repository")
	}

	var (
		store       imagegen.Store
		memoryStore *imagegen.MemoryStore
	)
	if cfg.S3Endpoint != "" {
		if store, err = imagegen.NewS3Store(imagegen.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			URLExpiry: cfg.S3URLExpiry,
		}); err != nil {
			return errors.Wrap(err, "create image store")
		}
	} else {
		memoryStore = imagegen.NewMemoryStore(cfg.ImageBaseURL)
		store = memoryStore
	}
	images := imagegen.NewGenerator(logger, imagegen.DallE{}, store)
	images.BatchSize = cfg.ImageBatchSize
	images.BatchDelay = cfg.ImageBatchDelay

	client := ai.NewClient(logger, ai.Config{
		OpenAIModel:    cfg.OpenAIModel,
		GeminiModel:    cfg.GeminiModel,
		AnthropicModel: cfg.AnthropicModel,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.AITimeout,
	})

	progress := broker.NewChannelBroker[string, runEvent]()
	go progress.Start()
	defer progress.Stop()

	app := application{
		logger: logger,
		db:     db,
		runs:   runs,
		cases:  cases,
		runner: newRunner(ctx, logger, runnerDeps{
			generator:       client,
			images:          images,
			runs:            runs,
			cases:           cases,
			progress:        progress,
			imageCredential: cfg.ImageCredential,
			defaults: generation.Config{
				Provider:   ai.Provider(cfg.Provider),
				Credential: cfg.Credential,
			},
		}),
		images: memoryStore,
	}

	err = app.configureAndStartServer(ctx, cfg.Addr)
	// Runs are cancelled together with ctx. Wait for them to record their failure.
	app.runner.wait()
	if err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug, true)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failed to load .env", errors.SlogError(err))
		os.Exit(1) //nolint:gocritic // stop() is not needed when exiting.
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
