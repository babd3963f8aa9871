package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/render"
	"github.com/sai034/css-video-editor/internal/service"
	"github.com/sai034/css-video-editor/internal/storage"
	"github.com/sai034/css-video-editor/pkg/models"
)

var (
	renderInput      string
	renderProject    string
	renderOut        string
	renderFormat     string
	renderStart      float64
	renderEnd        float64
	renderFPS        int
	renderNoProgress bool
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a project's overlays and music onto a video",
		Long: `Render a clip of the input video with the overlays, subtitles and music
tracks described by a YAML project file. Flags override the project.`,
		Example: `  vedit render --project trip.yaml
  vedit render --input beach.mp4 --project overlays.yaml --format mp4 --out beach-edit.mp4
  vedit render --input beach.mp4 --start 2 --end 8`,
		Args: cobra.NoArgs,
		RunE: runRender,
	}

	cmd.Flags().StringVarP(&renderInput, "input", "i", "", "Source video (overrides the project's source)")
	cmd.Flags().StringVarP(&renderProject, "project", "p", "", "YAML project file")
	cmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (default <input>-edit.<ext>)")
	cmd.Flags().StringVarP(&renderFormat, "format", "f", "", "Output format: webm or mp4")
	cmd.Flags().Float64Var(&renderStart, "start", -1, "Range start in seconds")
	cmd.Flags().Float64Var(&renderEnd, "end", -1, "Range end in seconds")
	cmd.Flags().IntVar(&renderFPS, "fps", 0, "Capture rate (default from config)")
	cmd.Flags().BoolVar(&renderNoProgress, "no-progress", false, "Disable the progress line")

	return cmd
}

// buildRequest merges the project file and the flags
func buildRequest() (models.RenderRequest, error) {
	var req models.RenderRequest
	if renderProject != "" {
		var err error
		if req, err = loadProject(renderProject); err != nil {
			return req, err
		}
	}

	if renderInput != "" {
		req.Source = renderInput
	}
	if renderFormat != "" {
		req.Format = renderFormat
	}
	if req.Format == "" {
		req.Format = models.FormatWebM
	}
	if renderStart >= 0 {
		req.Range.Start = renderStart
	}
	if renderEnd >= 0 {
		req.Range.End = renderEnd
	}
	if renderFPS > 0 {
		req.FPS = renderFPS
	}
	if req.Source == "" {
		return req, errors.New("no input video: pass --input or set source in the project")
	}

	if err := service.ValidateRequest(&req); err != nil {
		return req, err
	}
	return req, nil
}

func outputPath(req models.RenderRequest) string {
	if renderOut != "" {
		return renderOut
	}
	ext := req.Format
	if f, ok := models.LookupFormat(req.Format); ok {
		ext = f.Extension
	}
	base := filepath.Base(req.Source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "-edit." + ext
}

func runRender(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, err := buildRequest()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if req.FPS == 0 {
		req.FPS = cfg.Render.DefaultFPS
	}

	logger := newLogger(cmd.ErrOrStderr())
	fetcher := storage.NewFetcher(nil, cfg.Storage.FetchTimeout, logger.Component("fetch"))

	if err := os.MkdirAll(cfg.Render.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	tempDir, err := os.MkdirTemp(cfg.Render.TempDir, "vedit-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	cfg.Render.TempDir = tempDir

	source, cleanup, err := fetcher.Localize(ctx, req.Source, tempDir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", req.Source, err)
	}
	defer cleanup()
	req.Source = source

	pipeline, err := service.NewPipeline(cfg.Render, fetcher, logger.Component("render"))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	stderr := cmd.ErrOrStderr()
	res, err := pipeline.Render(ctx, req, progressObserver(stderr, !renderNoProgress && !outputJSON))
	if err != nil {
		if render.IsCancelled(err) {
			return errors.New("render cancelled")
		}
		return err
	}

	out := outputPath(req)
	if err := os.WriteFile(out, res.Blob.Data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	return printResult(cmd.OutOrStdout(), out, res)
}

// progressObserver prints a single updating progress line plus warnings for
// overlays and tracks that were skipped
func progressObserver(w io.Writer, showProgress bool) render.Observer {
	last := -1
	return render.ObserverFuncs{
		Progress: func(p render.Progress) {
			if !showProgress || int(p.Percent) == last {
				return
			}
			last = int(p.Percent)
			fmt.Fprintf(w, "\rRendering... %3d%% (%.1fs / %.1fs)", last, p.Time, p.Duration)
		},
		OverlayError: func(err *compositor.OverlayError) {
			fmt.Fprintf(w, "\nwarning: %v\n", err)
		},
		TrackError: func(err *audiograph.TrackError) {
			fmt.Fprintf(w, "warning: %v\n", err)
		},
		Complete: func(*render.Result) {
			if showProgress {
				fmt.Fprintln(w)
			}
		},
	}
}

func printResult(w io.Writer, path string, res *render.Result) error {
	if outputJSON {
		return writeJSON(w, map[string]interface{}{
			"output":        path,
			"format":        res.Blob.Format,
			"media_type":    res.Blob.MediaType,
			"size":          len(res.Blob.Data),
			"duration":      res.Duration,
			"frames":        res.Stats.Frames,
			"duplicated":    res.Stats.Duplicated,
			"dropped":       res.Stats.Dropped,
			"tracks_failed": len(res.TrackErrors),
		})
	}

	fmt.Fprintf(w, "Wrote %s\n", path)
	fmt.Fprintf(w, "  Format:   %s\n", res.Blob.MediaType)
	fmt.Fprintf(w, "  Duration: %.2fs\n", res.Duration)
	fmt.Fprintf(w, "  Frames:   %d (%d duplicated, %d dropped)\n", res.Stats.Frames, res.Stats.Duplicated, res.Stats.Dropped)
	fmt.Fprintf(w, "  Size:     %s\n", formatBytes(int64(len(res.Blob.Data))))
	if n := len(res.TrackErrors); n > 0 {
		fmt.Fprintf(w, "  %d music track(s) left out of the mix\n", n)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
