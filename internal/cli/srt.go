package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sai034/css-video-editor/pkg/models"
	"github.com/sai034/css-video-editor/pkg/srt"
)

var (
	srtProject string
	srtOut     string
	srtMerge   bool
)

func newSRTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srt",
		Short: "Convert subtitles between projects and SubRip files",
	}
	cmd.AddCommand(newSRTExportCmd())
	cmd.AddCommand(newSRTImportCmd())
	return cmd
}

func newSRTExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write a project's subtitles as SubRip",
		Example: "  vedit srt export --project trip.yaml --out trip.srt",
		Args:    cobra.NoArgs,
		RunE:    runSRTExport,
	}
	cmd.Flags().StringVarP(&srtProject, "project", "p", "", "YAML project file")
	cmd.Flags().StringVarP(&srtOut, "out", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newSRTImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Read a SubRip file as project subtitles",
		Long: `Read a SubRip file and print its cues as project subtitles, in YAML or
with --json as JSON. With --project and --merge the cues replace the
project's subtitles in place.`,
		Example: `  vedit srt import trip.srt
  vedit srt import trip.srt --project trip.yaml --merge`,
		Args: cobra.ExactArgs(1),
		RunE: runSRTImport,
	}
	cmd.Flags().StringVarP(&srtProject, "project", "p", "", "YAML project file to update with --merge")
	cmd.Flags().StringVarP(&srtOut, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&srtMerge, "merge", false, "Replace the project's subtitles with the imported ones")
	return cmd
}

func runSRTExport(cmd *cobra.Command, _ []string) error {
	req, err := loadProject(srtProject)
	if err != nil {
		return err
	}

	if srtOut == "" {
		return srt.Format(cmd.OutOrStdout(), req.Overlays.Subtitles)
	}
	if err := os.WriteFile(srtOut, srt.Marshal(req.Overlays.Subtitles), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", srtOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d subtitles to %s\n", len(req.Overlays.Subtitles), srtOut)
	return nil
}

func runSRTImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	subs, err := srt.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if subs == nil {
		subs = []models.Subtitle{}
	}

	if srtMerge {
		if srtProject == "" {
			return fmt.Errorf("--merge needs --project")
		}
		return mergeSubtitles(cmd.OutOrStdout(), srtProject, subs)
	}

	out := cmd.OutOrStdout()
	if srtOut != "" {
		file, err := os.Create(srtOut)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	return writeSubtitles(out, subs)
}

func writeSubtitles(w io.Writer, subs []models.Subtitle) error {
	if outputJSON {
		return writeJSON(w, map[string]interface{}{"subtitles": subs})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]interface{}{"subtitles": subs}); err != nil {
		return err
	}
	return enc.Close()
}

// mergeSubtitles rewrites the project file with subs. The project is read
// raw so relative media paths are kept as written.
func mergeSubtitles(w io.Writer, path string, subs []models.Subtitle) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read project: %w", err)
	}
	var req models.RenderRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse project %s: %w", path, err)
	}

	req.Overlays.Subtitles = subs
	if err := writeProject(path, req); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	fmt.Fprintf(w, "Imported %d subtitles into %s\n", len(subs), path)
	return nil
}
