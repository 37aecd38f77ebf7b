package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lecturecast/lecturecast/internal/api"
	"github.com/lecturecast/lecturecast/internal/config"
	"github.com/lecturecast/lecturecast/internal/db"
	"github.com/lecturecast/lecturecast/internal/jobs"
	"github.com/lecturecast/lecturecast/internal/logging"
	"github.com/lecturecast/lecturecast/internal/notify"
	"github.com/lecturecast/lecturecast/internal/pipeline"
	"github.com/lecturecast/lecturecast/internal/playback"
	"github.com/lecturecast/lecturecast/internal/render"
	"github.com/lecturecast/lecturecast/internal/slides"
	"github.com/lecturecast/lecturecast/internal/speech"
	"github.com/lecturecast/lecturecast/internal/speech/edgetts"
	"github.com/lecturecast/lecturecast/internal/storage"
	"github.com/lecturecast/lecturecast/internal/subtitle"
	"github.com/lecturecast/lecturecast/internal/toolchain"
	"github.com/lecturecast/lecturecast/internal/translate"
	"github.com/lecturecast/lecturecast/internal/video"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

type options struct {
	envFile   string
	slides    string
	narration string
	theme     string
	voice     string
	version   bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.envFile, "env", ".env", "dotenv file to load before reading the environment")
	flag.StringVar(&o.slides, "slides", "", "render this slides JSON once and exit instead of serving")
	flag.StringVar(&o.narration, "narration", "", "narration override JSON for -slides")
	flag.StringVar(&o.theme, "theme", "", "theme for -slides (default from config)")
	flag.StringVar(&o.voice, "voice", "", "voice for -slides (default from config)")
	flag.BoolVar(&o.version, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func run() error {
	startTime := time.Now()
	opts := parseFlags()

	if opts.version {
		fmt.Printf("lecturecast %s (%s, %s)\n", config.Version, config.GitCommit, config.BuildTime)
		return nil
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting lecturecast", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	stack, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}

	if opts.slides != "" {
		return runOnce(cfg, stack, opts, logger)
	}
	return serve(cfg, stack, startTime, logger)
}

// stack is the shared media pipeline of both modes.
type stack struct {
	store  *storage.Store
	doctor *toolchain.CachedDoctor
	themes *render.Catalogue
	orch   *pipeline.Orchestrator
}

func buildStack(cfg config.Config, logger *slog.Logger) (*stack, error) {
	store, err := storage.NewStore(cfg.JobsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	tcCfg := toolchain.DefaultConfig(logger)
	tcCfg.FFmpegPath = cfg.FFmpegPath()
	tcCfg.FFprobePath = cfg.FFprobePath()
	tcCfg.EncodeTimeout = cfg.EncodeTimeout()
	tcCfg.ProbeTimeout = cfg.ProbeTimeout()
	tcCfg.DoctorTimeout = cfg.DoctorTimeout()
	runner, err := toolchain.NewRunner(tcCfg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg is required: %w", err)
	}

	doctor := toolchain.NewCachedDoctor(runner, logger)
	initCtx, initCancel := context.WithTimeout(context.Background(), cfg.DoctorTimeout())
	defer initCancel()
	if caps, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else {
		logger.Info("toolchain capabilities detected",
			"ffmpeg", caps.FFmpeg.Version,
			"encode", caps.HasEncode,
			"subtitles", caps.HasSubtitles,
			"probe", caps.HasProbe,
		)
	}

	var provider speech.Provider = edgetts.NewProvider(edgetts.SettingsFromEnv(), logger)
	if cfg.TTSSerialize() {
		provider = speech.Serialize(provider)
	}
	audio := speech.NewStage(speech.StageConfig{Provider: provider, Logger: logger})

	themes, err := render.LoadCatalogue(cfg.ThemesFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load themes: %w", err)
	}
	if !themes.Has(cfg.Theme()) {
		return nil, fmt.Errorf("default theme %q is not defined", cfg.Theme())
	}
	renderer, err := render.NewNativeRenderer(themes, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise renderer: %w", err)
	}

	settings := video.DefaultSettings()
	encoder := video.NewFFmpegEncoder(runner, settings, logger)
	assembler := video.NewAssembler(encoder, runner, settings.FPS, logger)

	return &stack{
		store:  store,
		doctor: doctor,
		themes: themes,
		orch:   pipeline.NewOrchestrator(audio, renderer, assembler, store, logger),
	}, nil
}

// runOnce renders a single deck in the foreground and prints the result.
func runOnce(cfg config.Config, s *stack, opts options, logger *slog.Logger) error {
	deck, err := slides.LoadDeck(opts.slides)
	if err != nil {
		return err
	}
	narr := slides.NarrationMap{}
	if opts.narration != "" {
		if narr, err = slides.LoadNarrationFile(opts.narration); err != nil {
			return err
		}
	}

	job := pipeline.Job{
		Deck:      deck,
		Narration: narr,
		Theme:     firstNonEmpty(opts.theme, cfg.Theme()),
		Voice:     firstNonEmpty(opts.voice, cfg.Voice()),
	}
	if !s.themes.Has(job.Theme) {
		return fmt.Errorf("unknown theme %q", job.Theme)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := s.orch.Run(ctx, job, pipeline.LogReporter{Logger: logger})
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return runErr
}

func serve(cfg config.Config, s *stack, startTime time.Time, logger *slog.Logger) error {
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║                             LECTURECAST v%-37s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-48d║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-65s║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	var translator subtitle.Translator
	if cfg.GeminiAPIKey() != "" {
		g, err := translate.NewGemini(context.Background(), cfg.GeminiAPIKey(), cfg.GeminiModel(), logger)
		if err != nil {
			logger.Warn("subtitle translation unavailable", "error", err)
		} else {
			translator = g
			logger.Info("subtitle translation enabled", "languages", len(translate.Languages))
		}
	}

	service := jobs.NewService(jobs.ServiceConfig{
		Repo:         repo,
		Store:        s.store,
		Themes:       s.themes,
		Translator:   translator,
		DefaultTheme: cfg.Theme(),
		DefaultVoice: cfg.Voice(),
		Logger:       logger,
	})

	runner := jobs.NewRunner(service, repo, s.orch, s.doctor, cfg.MaxJobs(), logger)
	service.OnSubmit(runner.Wake)

	if cfg.WebhookURL() != "" {
		runner.SetNotifier(notify.NewWebhook(cfg.WebhookURL(), cfg.WebhookToken(), logger))
		logger.Info("webhook notifications enabled")
	} else {
		runner.SetNotifier(notify.NewLogNotifier(logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runnerDone := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(runnerDone)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Service:     service,
		Playback:    playback.NewServer(logger),
		ConfigStore: repo,
		Runner:      runner,
		Doctor:      s.doctor,
		Logger:      logger,
		StartTime:   startTime,
		Version:     config.Version,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		logger.Warn("jobs still running at shutdown; they will be marked failed on next start")
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
