package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	"github.com/pithecene-io/downlink/adapter"
	"github.com/pithecene-io/downlink/adapter/redis"
	"github.com/pithecene-io/downlink/adapter/webhook"
	"github.com/pithecene-io/downlink/auth"
	"github.com/pithecene-io/downlink/checkpoint"
	"github.com/pithecene-io/downlink/cli/config"
	"github.com/pithecene-io/downlink/cli/render"
	"github.com/pithecene-io/downlink/iox"
	"github.com/pithecene-io/downlink/lode"
	"github.com/pithecene-io/downlink/log"
	"github.com/pithecene-io/downlink/metrics"
	"github.com/pithecene-io/downlink/stream"
	"github.com/pithecene-io/downlink/transport"
	"github.com/pithecene-io/downlink/types"
	"github.com/pithecene-io/downlink/wire"
)

// Exit codes of the stream command.
const (
	exitSuccess      = 0
	exitStreamFailed = 1
	exitConfigError  = 2
)

// DefaultEndpoint is the public streaming API.
const DefaultEndpoint = "https://api.stellarstation.com"

// archiveTimeout bounds the final metrics write after the run.
const archiveTimeout = 30 * time.Second

// StreamCommand returns the stream command.
// dialOpts are appended to the transport's dial options.
func StreamCommand(dialOpts ...grpc.DialOption) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a downlink.yaml config file (flags override)",
		},
		// Connection
		&cli.StringFlag{
			Name:    "url",
			Usage:   "Streaming API endpoint",
			EnvVars: []string{"STELLARSTATION_API_URL"},
			Value:   DefaultEndpoint,
		},
		&cli.StringFlag{
			Name:    "key",
			Usage:   "Service-account key file, or a pre-issued bearer token",
			EnvVars: []string{"STELLARSTATION_API_KEY"},
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User agent sent with every call",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Use plaintext for host:port endpoints",
		},
		&cli.IntFlag{
			Name:  "max-message-bytes",
			Usage: "Max inbound and outbound message size (default 10 MiB)",
		},
		// Plan
		&cli.StringFlag{
			Name:    "satellite-id",
			Aliases: []string{"s"},
			Usage:   "Satellite to stream telemetry for (required)",
		},
		&cli.StringFlag{
			Name:    "plan-id",
			Aliases: []string{"p"},
			Usage:   "Only stream telemetry of this plan",
		},
		&cli.BoolFlag{
			Name:    "reconnect",
			Aliases: []string{"r"},
			Usage:   "Reconnect and resume when the server closes a stream",
		},
		&cli.StringSliceFlag{
			Name:  "accepted-framing",
			Usage: "Only receive telemetry of these framings (e.g. AX25, BITSTREAM); repeatable",
		},
		&cli.StringFlag{
			Name:  "reconnect-stream-id",
			Usage: "Stream id to resume on the first attempt",
		},
		&cli.StringFlag{
			Name:    "reconnect-message-ack-id",
			Aliases: []string{"reconnect-message-index"},
			Usage:   "Last acknowledged message id to resume after on the first attempt",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "Number of concurrent streams",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Max attempts per stream with --reconnect (0 = unlimited)",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (generated when empty)",
		},
		&cli.StringFlag{
			Name:  "checkpoint-dir",
			Usage: "Directory for resume checkpoints (disabled when empty)",
		},
		// Adapter
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook URL or redis:// URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel or stream key",
		},
		&cli.StringFlag{
			Name:  "adapter-mode",
			Usage: "Redis delivery: publish or stream",
		},
		&cli.Int64Flag{
			Name:  "adapter-max-len",
			Usage: "Approximate max length of the redis stream (0 = unbounded)",
		},
		&cli.StringFlag{
			Name:  "adapter-secret",
			Usage: "HMAC secret for webhook signatures",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Extra webhook header as key=value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
			Value: webhook.DefaultTimeout,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
			Value: webhook.DefaultRetries,
		},
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, OutputFlags()...)

	return &cli.Command{
		Name:   "stream",
		Usage:  "Open telemetry streams for a satellite and report how each ended",
		Flags:  flags,
		Action: streamAction(dialOpts),
	}
}

// streamChoice is the resolved configuration of one run.
type streamChoice struct {
	endpoint        string
	key             string
	userAgent       string
	insecure        bool
	maxMessageBytes int

	runID         string
	plan          stream.Plan
	maxAttempts   int
	checkpointDir string

	storage storageChoice
	adapter *adapterChoice

	// logOutput receives run logs; nil keeps the logger default.
	logOutput io.Writer
}

// storageChoice holds resolved archive configuration.
type storageChoice struct {
	backend   string // "fs", "s3" or empty (disabled)
	path      string
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

// label is the storage_backend metrics dimension.
func (s storageChoice) label() string {
	if s.backend == "" {
		return "none"
	}
	return s.backend
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	mode        string
	maxLen      int64
	secret      string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

func streamAction(dialOpts []grpc.DialOption) cli.ActionFunc {
	return func(c *cli.Context) error {
		var cfg *config.Config
		if path := c.String("config"); path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				return cli.Exit(err.Error(), exitConfigError)
			}
			cfg = loaded
		}

		choice, err := resolveStreamChoice(c, cfg)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		choice.logOutput = c.App.ErrWriter

		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := runStreams(ctx, choice, dialOpts)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		if err := renderReport(r, report); err != nil {
			return err
		}
		if report.Failed() {
			return cli.Exit("", exitStreamFailed)
		}
		return nil
	}
}

// runStreams wires the run's collaborators and supervises it. Any returned
// error is an initialization failure; stream failures live in the report.
func runStreams(ctx context.Context, choice *streamChoice, dialOpts []grpc.DialOption) (*stream.Report, error) {
	tokens, err := auth.Resolve(choice.key, audienceFor(choice.endpoint))
	if err != nil {
		if errors.Is(err, auth.ErrEmptyToken) {
			return nil, errors.New("--key is required (or set STELLARSTATION_API_KEY)")
		}
		return nil, fmt.Errorf("invalid --key: %w", err)
	}

	logger := log.NewLogger(&types.StreamMeta{
		RunID:       choice.runID,
		SatelliteID: choice.plan.SatelliteID,
		PlanID:      choice.plan.PlanID,
	})
	if choice.logOutput != nil {
		logger = logger.WithOutput(choice.logOutput)
	}
	defer iox.DiscardErr(logger.Sync)
	sugar := logger.Sugar()

	client, err := transport.Dial(transport.DialConfig{
		Endpoint:        choice.endpoint,
		UserAgent:       choice.userAgent,
		Insecure:        choice.insecure,
		MaxMessageBytes: choice.maxMessageBytes,
		DialOptions:     dialOpts,
	})
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(client)
	sugar.Infof("streaming from %s with %d stream(s)", client.Target(), choice.plan.Count)

	collector := metrics.NewCollector(choice.runID, choice.plan.SatelliteID, choice.plan.PlanID, choice.storage.label())

	var checkpoints checkpoint.Store
	if choice.checkpointDir != "" {
		store, err := checkpoint.NewFileStore(choice.checkpointDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint dir: %w", err)
		}
		sugar.Infof("checkpoints in %s", store.Dir())
		checkpoints = store
	}

	startTime := time.Now()
	archive, err := buildArchive(ctx, choice.storage, startTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	var sink stream.BatchSink
	if archive != nil {
		defer iox.DiscardClose(archive)
		sink = lode.NewInstrumentedSink(archive, collector)
	}

	var notify adapter.Adapter
	if choice.adapter != nil {
		a, err := buildAdapter(choice.adapter, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter: %w", err)
		}
		defer iox.DiscardClose(a)
		notify = a
	}

	sup := &stream.Supervisor{
		Opener:      client,
		Tokens:      tokens,
		Sink:        sink,
		Checkpoints: checkpoints,
		Adapter:     notify,
		MaxAttempts: choice.maxAttempts,
		RunID:       choice.runID,
		Logger:      logger,
		Collector:   collector,
	}

	report, err := sup.Run(ctx, choice.plan)
	if err != nil {
		return nil, err
	}

	if archive != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := archive.WriteMetrics(writeCtx, report.Metrics, time.Now()); err != nil {
			logger.Warn("failed to archive run metrics", map[string]any{"error": err.Error()})
		}
	}
	return report, nil
}

// audienceFor derives the JWT audience from an https endpoint. Other
// endpoints use the default audience.
func audienceFor(endpoint string) string {
	if !strings.HasPrefix(endpoint, "https://") {
		return ""
	}
	return strings.TrimSuffix(endpoint, "/")
}

// resolveStreamChoice merges flags over config and validates the result.
// Flags explicitly set on the command line (or by env var) win; config values
// win over flag defaults.
func resolveStreamChoice(c *cli.Context, cfg *config.Config) (*streamChoice, error) {
	choice := &streamChoice{
		endpoint:        resolveString(c, "url", configVal(cfg, func(c *config.Config) string { return c.Endpoint })),
		key:             resolveString(c, "key", configVal(cfg, func(c *config.Config) string { return c.Key })),
		userAgent:       resolveString(c, "user-agent", configVal(cfg, func(c *config.Config) string { return c.UserAgent })),
		insecure:        resolveBool(c, "insecure", configVal(cfg, func(c *config.Config) bool { return c.Insecure })),
		maxMessageBytes: resolveInt(c, "max-message-bytes", configVal(cfg, func(c *config.Config) int { return c.MaxMessageBytes })),
		runID:           c.String("run-id"),
		maxAttempts:     resolveInt(c, "max-attempts", configVal(cfg, func(c *config.Config) int { return c.MaxAttempts })),
		checkpointDir:   resolveString(c, "checkpoint-dir", configVal(cfg, func(c *config.Config) string { return c.CheckpointDir })),
		plan: stream.Plan{
			SatelliteID: resolveString(c, "satellite-id", configVal(cfg, func(c *config.Config) string { return c.SatelliteID })),
			PlanID:      resolveString(c, "plan-id", configVal(cfg, func(c *config.Config) string { return c.PlanID })),
			Count:       resolveInt(c, "count", configVal(cfg, func(c *config.Config) int { return c.Count })),
			Reconnect:   resolveBool(c, "reconnect", configVal(cfg, func(c *config.Config) bool { return c.Reconnect })),
			Hints: types.ResumeHints{
				StreamID:    c.String("reconnect-stream-id"),
				ResumeAckID: c.String("reconnect-message-ack-id"),
			},
		},
	}

	if strings.TrimSpace(choice.plan.SatelliteID) == "" {
		return nil, errors.New("--satellite-id is required (or satellite_id in config)")
	}
	if choice.plan.Count < 1 {
		return nil, fmt.Errorf("--count must be >= 1, got %d", choice.plan.Count)
	}
	if choice.maxAttempts < 0 {
		return nil, fmt.Errorf("--max-attempts must be >= 0, got %d", choice.maxAttempts)
	}
	if choice.maxMessageBytes < 0 {
		return nil, fmt.Errorf("--max-message-bytes must be >= 0, got %d", choice.maxMessageBytes)
	}
	if choice.runID == "" {
		choice.runID = uuid.New().String()
	}

	framings := configVal(cfg, func(c *config.Config) []string { return c.AcceptedFraming })
	if c.IsSet("accepted-framing") {
		framings = c.StringSlice("accepted-framing")
	}
	for _, name := range framings {
		f, err := wire.ParseFraming(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --accepted-framing: %w", err)
		}
		choice.plan.AcceptedFraming = append(choice.plan.AcceptedFraming, f)
	}

	storage, err := resolveStorageChoice(c, cfg)
	if err != nil {
		return nil, err
	}
	choice.storage = storage

	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		ac, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return nil, err
		}
		choice.adapter = ac
	}

	return choice, nil
}

// resolveStorageChoice resolves archive flags. The archive is disabled when
// neither backend nor path is set; a path alone selects fs.
func resolveStorageChoice(c *cli.Context, cfg *config.Config) (storageChoice, error) {
	sc := storageChoice{
		backend:   resolveString(c, "storage-backend", configVal(cfg, func(c *config.Config) string { return c.Storage.Backend })),
		path:      resolveString(c, "storage-path", configVal(cfg, func(c *config.Config) string { return c.Storage.Path })),
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(c *config.Config) string { return c.Storage.Dataset })),
		region:    resolveString(c, "storage-region", configVal(cfg, func(c *config.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(c *config.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Storage.S3PathStyle })),
	}

	switch {
	case sc.backend == "" && sc.path == "":
		return sc, nil
	case sc.backend == "":
		sc.backend = "fs"
	case sc.path == "":
		return sc, fmt.Errorf("--storage-path is required when --storage-backend=%s", sc.backend)
	}

	switch sc.backend {
	case "fs", "s3":
	default:
		return sc, fmt.Errorf("invalid --storage-backend %q (must be fs or s3)", sc.backend)
	}
	if sc.backend != "s3" && (sc.region != "" || sc.endpoint != "" || sc.pathStyle) {
		return sc, errors.New("--storage-region, --storage-endpoint and --storage-s3-path-style require --storage-backend=s3")
	}
	return sc, nil
}

// parseAdapterConfigWithPrecedence resolves adapter flags over config.
// Config headers are merged under --adapter-header values.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		mode:        resolveString(c, "adapter-mode", configVal(cfg, func(c *config.Config) string { return c.Adapter.Mode })),
		maxLen:      c.Int64("adapter-max-len"),
		secret:      resolveString(c, "adapter-secret", configVal(cfg, func(c *config.Config) string { return c.Adapter.Secret })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     c.Int("adapter-retries"),
		headers:     map[string]string{},
	}
	if !c.IsSet("adapter-max-len") && cfg != nil {
		ac.maxLen = cfg.Adapter.MaxLen
	}
	if !c.IsSet("adapter-retries") && cfg != nil && cfg.Adapter.Retries != nil {
		ac.retries = *cfg.Adapter.Retries
	}
	if cfg != nil {
		maps.Copy(ac.headers, cfg.Adapter.Headers)
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected key=value)", h)
		}
		ac.headers[strings.TrimSpace(k)] = v
	}

	switch adapterType {
	case "webhook":
		if ac.url == "" {
			return nil, errors.New("--adapter-url is required when --adapter=webhook")
		}
	case "redis":
		if ac.url == "" {
			return nil, errors.New("--adapter-url is required when --adapter=redis")
		}
		switch redis.Mode(ac.mode) {
		case "", redis.ModePublish, redis.ModeStream:
		default:
			return nil, fmt.Errorf("invalid --adapter-mode %q (must be publish or stream)", ac.mode)
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}
	return ac, nil
}

func buildAdapter(ac *adapterChoice, sugar *log.SugaredLogger) (adapter.Adapter, error) {
	retryLog := sugar.With("adapter", ac.adapterType)
	onRetry := func(err error, wait time.Duration) {
		retryLog.Warnf("delivery failed, retrying in %s: %v", wait, err)
	}
	switch ac.adapterType {
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Secret:  ac.secret,
			Timeout: ac.timeout,
			Retries: ac.retries,
			OnRetry: onRetry,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Mode:    redis.Mode(ac.mode),
			MaxLen:  ac.maxLen,
			Timeout: ac.timeout,
			Retries: ac.retries,
			OnRetry: onRetry,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.adapterType)
	}
}

// buildArchive creates the archive sink, or nil when storage is disabled.
// Records are partitioned under the day the run started.
func buildArchive(ctx context.Context, sc storageChoice, startTime time.Time) (*lode.Sink, error) {
	cfg := lode.Config{
		Dataset: sc.dataset,
		Day:     lode.DeriveDay(startTime),
	}

	var client lode.Client
	switch sc.backend {
	case "":
		return nil, nil
	case "fs":
		c, err := lode.NewLodeClient(cfg, sc.path)
		if err != nil {
			return nil, err
		}
		client = c
	case "s3":
		c, err := lode.NewLodeS3Client(ctx, cfg, sc.s3Config())
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.backend)
	}
	return lode.NewSink(client), nil
}

// configVal reads a value from cfg, or the zero value when cfg is nil.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}
