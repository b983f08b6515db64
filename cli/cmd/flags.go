// Package cmd provides CLI commands for the downlink binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the Bubble Tea view. Only stats supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}
)

// OutputFlags returns the shared output flags. Every command that renders
// a result accepts them.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// storageFlags are shared by stream (write) and stats (read).
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Archive backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Archive path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Archive dataset ID (default: \"downlink\")",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend (default chain when empty)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint (MinIO, R2, LocalStack)",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
	}
}
