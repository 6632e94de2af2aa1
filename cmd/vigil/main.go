package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vigilsec/vigil/internal/adapters/breach"
	"github.com/vigilsec/vigil/internal/adapters/cache"
	"github.com/vigilsec/vigil/internal/adapters/detection"
	"github.com/vigilsec/vigil/internal/adapters/input"
	"github.com/vigilsec/vigil/internal/adapters/output"
	"github.com/vigilsec/vigil/internal/app"
	"github.com/vigilsec/vigil/internal/domain"
	"github.com/vigilsec/vigil/internal/ports"
	"github.com/vigilsec/vigil/pkg/passcheck"
)

var (
	cfgFile       string
	feedPath      string
	fromBeginning bool
	demoMode      bool
	demoRate      int
	checkBreach   bool

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Security monitoring and automated threat response",
	Long: `Vigil watches a request feed, scores each request for attack
signatures and behavioral anomalies, and responds automatically:
blocking sources, locking accounts, throttling and quarantining.

Detection:
  - Signature analysis: SQLi, XSS, path traversal, command injection
  - Behavioral analysis: brute force, rapid requests, endpoint scans, bots
  - Block correlation: known-bad subjects escalate straight to critical

Response:
  - Rule table with per-subject cooldowns
  - TTL blocks in Redis (or in-process for single-node setups)
  - Append-only audit trail and quarantined request payloads`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring a request feed",
	Long: `Start real-time analysis of the configured request feed.
The feed is newline-delimited JSON, one request context per line.

Examples:
  vigil run --feed /var/log/gateway/requests.ndjson
  vigil run --feed ./requests.ndjson --from-beginning
  vigil run --demo --demo-rate 500`,
	RunE: runMonitor,
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Check password strength from stdin",
	Long: `Read a candidate password from stdin and print its strength
assessment. With --check-breach the password is also checked against
the Have I Been Pwned corpus using k-anonymity: only the first five
characters of the SHA-1 hash ever leave this machine.`,
	RunE: runPassword,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Vigil %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./vigil.yaml)")

	runCmd.Flags().StringVarP(&feedPath, "feed", "f", "", "request feed to monitor")
	runCmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "replay the feed from the start")
	runCmd.Flags().BoolVar(&demoMode, "demo", false, "demo mode: generate synthetic traffic")
	runCmd.Flags().IntVar(&demoRate, "demo-rate", 200, "demo mode: requests per second")

	passwordCmd.Flags().BoolVar(&checkBreach, "check-breach", false, "also check the password against known breaches")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch viper.GetString("log.level") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

func scorerConfigFromViper() detection.ScorerConfig {
	cfg := detection.DefaultScorerConfig()

	cfg.PathSignatureWeight = viper.GetFloat64("scoring.path_weight")
	cfg.QuerySignatureWeight = viper.GetFloat64("scoring.query_weight")
	cfg.BodySignatureWeight = viper.GetFloat64("scoring.body_weight")
	cfg.HeaderSignatureWeight = viper.GetFloat64("scoring.header_weight")
	cfg.BruteForceWeight = viper.GetFloat64("scoring.brute_force_weight")
	cfg.RapidRequestWeight = viper.GetFloat64("scoring.rapid_request_weight")
	cfg.EndpointScanWeight = viper.GetFloat64("scoring.endpoint_scan_weight")
	cfg.BotUserAgentWeight = viper.GetFloat64("scoring.bot_ua_weight")
	cfg.BotTimingWeight = viper.GetFloat64("scoring.bot_timing_weight")
	cfg.BlockedScore = viper.GetFloat64("scoring.blocked_score")

	cfg.BruteForceThreshold = viper.GetInt("scoring.brute_force_threshold")
	cfg.BruteForceWindow = time.Duration(viper.GetInt("scoring.brute_force_window_seconds")) * time.Second
	cfg.RateLimitPerMinute = viper.GetFloat64("scoring.rate_limit_per_minute")
	cfg.ScanEndpointThreshold = viper.GetInt("scoring.scan_endpoint_threshold")
	cfg.ScanSampleSize = viper.GetInt("scoring.scan_sample_size")
	cfg.RegularityThreshold = viper.GetFloat64("scoring.regularity_threshold")

	return cfg
}

func buildKVCache() (ports.KVCache, error) {
	if !viper.GetBool("redis.enabled") {
		log.Info().Msg("Using in-process cache (single-node mode)")
		return cache.NewMemoryCache(), nil
	}

	cfg := cache.DefaultRedisConfig()
	cfg.Addr = viper.GetString("redis.addr")
	cfg.Password = viper.GetString("redis.password")
	cfg.DB = viper.GetInt("redis.db")
	return cache.NewRedisCache(cfg)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := app.LoadConfig(cfgFile); err != nil {
		return err
	}
	setupLogging()

	if feedPath == "" {
		feedPath = viper.GetString("feed.path")
	}
	if feedPath == "" && !demoMode {
		return fmt.Errorf("request feed required: use --feed or --demo")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := buildKVCache()
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	blocks := cache.NewBlockStore(kv)
	if err := blocks.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial block store load failed")
	}

	auditSink, err := output.NewJSONAuditSink(output.JSONAuditConfig{
		FilePath: viper.GetString("audit.path"),
		Stdout:   viper.GetBool("audit.stdout"),
	})
	if err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	defer auditSink.Close()

	quarantine, err := output.NewBoltQuarantineStore(output.QuarantineConfig{
		DBPath: viper.GetString("quarantine.db_path"),
	})
	if err != nil {
		return fmt.Errorf("quarantine store: %w", err)
	}
	defer quarantine.Close()

	tracker := detection.NewBehaviorTracker(detection.DefaultBehaviorConfig())
	matcher := detection.NewSignatureMatcher(detection.DefaultPatterns())
	scorer := detection.NewScorer(matcher, tracker, blocks, scorerConfigFromViper())

	internal := domain.NewMonitorMetrics()
	var metrics ports.MetricsCollector = output.NopMetrics{}
	var promMetrics *output.PrometheusMetrics
	if viper.GetBool("metrics.enabled") {
		promMetrics = output.NewPrometheusMetrics("vigil", internal)
		metrics = promMetrics
	}

	eventLog := app.NewSecurityEventLog(app.EventLogConfig{
		Capacity:     viper.GetInt("eventlog.capacity"),
		MirrorBuffer: viper.GetInt("eventlog.mirror_buffer"),
	}, auditSink)
	defer eventLog.Close()

	executor := app.NewActionExecutor(blocks, app.NopSessionManager{}, kv, quarantine, output.NewLogNotifier(auditSink))
	engine := app.NewResponseEngine(app.ResponseEngineConfig{
		QueueSize:   viper.GetInt("responder.queue_size"),
		HistorySize: viper.GetInt("responder.history_size"),
	}, executor, kv, auditSink, metrics, internal)
	if err := engine.RegisterRules(app.DefaultRules()); err != nil {
		return fmt.Errorf("response rules: %w", err)
	}
	engine.Start(ctx)
	defer engine.Stop()

	monitor := app.NewMonitor(app.MonitorConfig{
		CleanupInterval:     time.Duration(viper.GetInt("monitor.cleanup_interval_seconds")) * time.Second,
		TrackerIdleTimeout:  time.Duration(viper.GetInt("monitor.tracker_idle_seconds")) * time.Second,
		BruteForceThreshold: viper.GetInt("scoring.brute_force_threshold"),
		BruteForceWindow:    time.Duration(viper.GetInt("scoring.brute_force_window_seconds")) * time.Second,
	}, scorer, tracker, eventLog, engine, blocks, metrics, internal)
	monitor.Start(ctx)
	defer monitor.Stop()

	if promMetrics != nil {
		health := output.NewHealthChecker(engine, internal, output.DefaultHealthCheckerConfig())
		metricsConfig := output.MetricsConfig{
			Port:       viper.GetString("metrics.port"),
			Path:       viper.GetString("metrics.path"),
			HealthPath: "/ready",
			Health:     health,
		}
		if err := promMetrics.StartServer(metricsConfig); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		}
		defer promMetrics.StopServer()
	}

	reloader := app.NewHotReloader(func() {
		scorer.SetConfig(scorerConfigFromViper())
		log.Info().Msg("Detection weights reapplied")
	})
	if viper.ConfigFileUsed() != "" {
		reloader.StartWatching()
		defer reloader.Stop()
	}

	var reader ports.RequestReader
	if demoMode {
		cfg := input.DefaultDemoConfig()
		cfg.Rate = demoRate
		cfg.BufferSize = viper.GetInt("feed.buffer_size")
		cfg.AttackPercent = viper.GetInt("demo.attack_percent")
		reader = input.NewDemoGenerator(cfg)
		log.Info().Int("rate", demoRate).Msg("Vigil started (demo mode)")
	} else {
		opts := []input.TailerOption{input.WithBuffer(viper.GetInt("feed.buffer_size"))}
		if fromBeginning || viper.GetBool("feed.from_beginning") {
			opts = append(opts, input.FromBeginning())
			log.Info().Msg("Replaying feed from the beginning")
		}
		reader = input.NewFileTailer(feedPath, input.NewNDJSONParser(), opts...)
		log.Info().Str("feed", feedPath).Msg("Vigil started")
	}

	requests, errs := reader.Start(ctx)
	defer reader.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(30 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			return nil

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Feed error")

		case req, ok := <-requests:
			if !ok {
				log.Info().Msg("Feed closed")
				return nil
			}
			monitor.AnalyzeRequest(ctx, req)

			// Gateways annotate authentication outcomes on the feed.
			if req.Headers["x-auth-result"] == "failure" {
				monitor.RecordLoginFailure(ctx, req.UserID, req.IP)
			}

		case <-statusTicker.C:
			snap := monitor.Snapshot()
			log.Info().
				Int64("requests", snap.RequestsAnalyzed).
				Int64("threats", snap.ThreatsDetected).
				Int64("responses", snap.ResponsesExecuted).
				Int64("blocked", snap.BlockedSubjects).
				Msg("Monitor status")
		}
	}
}

func runPassword(cmd *cobra.Command, args []string) error {
	setupLogging()

	fmt.Fprint(os.Stderr, "Password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return fmt.Errorf("no password on stdin: %w", scanner.Err())
	}
	password := strings.TrimRight(scanner.Text(), "\r\n")

	result := passcheck.Validate(password, "", "")
	fmt.Printf("Strength: %s (score %d/100)\n", result.Level, result.Score)
	for _, f := range result.Feedback {
		fmt.Printf("  - %s\n", f)
	}
	if !result.MeetsRequirements {
		fmt.Println("Password does not meet the minimum requirements")
	}

	if checkBreach {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client := breach.NewClient()
		pwned, count := client.CheckPwned(ctx, password)
		if pwned {
			fmt.Printf("Breached: seen %d times in known breaches, do not use it\n", count)
		} else {
			fmt.Println("Not found in known breaches")
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
