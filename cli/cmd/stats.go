package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/downlink/cli/reader"
	"github.com/pithecene-io/downlink/cli/render"
	"github.com/pithecene-io/downlink/cli/tui"
	"github.com/pithecene-io/downlink/lode"
)

// statsTimeout bounds one archive query.
const statsTimeout = 30 * time.Second

// runStatsTUI is replaced in tests.
var runStatsTUI = tui.RunStatsTUI

// StatsCommand returns the stats command. It reads the latest archived run
// metrics record.
func StatsCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "run-id", Usage: "Read metrics for a specific run ID"},
		&cli.StringFlag{Name: "satellite-id", Aliases: []string{"s"}, Usage: "Read metrics for a specific satellite"},
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, OutputFlags()...)
	flags = append(flags, TUIFlag)

	return &cli.Command{
		Name:   "stats",
		Usage:  "Show archived run metrics (latest matching run)",
		Flags:  flags,
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	backend := c.String("storage-backend")
	path := c.String("storage-path")
	if path == "" {
		return cli.Exit("--storage-path is required", exitConfigError)
	}
	if backend == "" {
		backend = "fs"
	}
	if c.Bool("tui") && c.IsSet("format") {
		return cli.Exit("--tui cannot be combined with --format", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, storageChoice{
		backend:   backend,
		path:      path,
		dataset:   c.String("storage-dataset"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), exitConfigError)
	}

	record, err := lode.QueryLatestMetrics(ctx, ds, c.String("run-id"), c.String("satellite-id"))
	if err != nil {
		if errors.Is(err, lode.ErrNoMetricsFound) {
			return cli.Exit("no archived metrics match the given filters", exitStreamFailed)
		}
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	parsed, err := reader.ParseMetricsRecord(record)
	if err != nil {
		return fmt.Errorf("failed to parse metrics record: %w", err)
	}
	if c.Bool("tui") {
		return runStatsTUI(parsed)
	}
	return r.RenderTitled("run "+parsed.RunID, parsed)
}

// buildReadDataset opens the archive for reading.
func buildReadDataset(ctx context.Context, sc storageChoice) (lodelibrary.Dataset, error) {
	switch sc.backend {
	case "fs":
		return lode.NewReadDatasetFS(sc.dataset, sc.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, sc.dataset, sc.s3Config())
	default:
		return nil, fmt.Errorf("unsupported --storage-backend %q (must be fs or s3)", sc.backend)
	}
}
