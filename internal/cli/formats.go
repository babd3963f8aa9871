package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sai034/css-video-editor/pkg/models"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List output formats and whether they can be rendered",
		Args:  cobra.NoArgs,
		RunE:  runFormats,
	}
}

func runFormats(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, models.Formats)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tMIME TYPE\tRENDERABLE")
	for _, f := range models.Formats {
		renderable := "no"
		if f.Editable {
			renderable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Label, f.MimeType, renderable)
	}
	return tw.Flush()
}
