// Package cli implements the vedit command line: local renders, format
// listing, SubRip conversion and API tokens.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/logging"
)

var (
	configPath string
	outputJSON bool
	verbose    bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vedit",
		Short:         "Render timelines of overlays and music onto a video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (render section is used)")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline details to stderr")

	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newFormatsCmd())
	cmd.AddCommand(newSRTCmd())
	cmd.AddCommand(newTokenCmd())

	return cmd
}

// loadConfig reads --config, or the defaults and VEDIT_* environment when unset
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default()
	}
	return config.Load(configPath)
}

func newLogger(w io.Writer) *logging.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(w, logging.Config{Level: level, Format: "console"})
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
