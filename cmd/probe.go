package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>...",
	Short: "Show the size of remote files without downloading them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		runtime := types.ConvertRuntimeConfig(settings.ToRuntimeConfig())
		return runProbe(ctx, cmd.OutOrStdout(), dedupe(args), runtime)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

// runProbe probes urls concurrently and prints them in argument order.
func runProbe(ctx context.Context, w io.Writer, urls []string, runtime *types.RuntimeConfig) error {
	client := engine.NewHTTPClient(runtime)
	results, errs := engine.ProbeAll(ctx, client, urls, runtime)

	for _, u := range urls {
		if err, ok := errs[u]; ok {
			fmt.Fprintf(w, "%s\terror: %v\n", u, err)
			continue
		}
		fmt.Fprintln(w, formatProbe(u, results[u]))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d probes failed", len(errs), len(urls))
	}
	return nil
}

func formatProbe(u string, r *engine.ProbeResult) string {
	size := "unknown"
	if r.Known() {
		size = utils.FormatBytes(uint64(r.Size))
	}
	line := fmt.Sprintf("%s\t%s", u, size)
	if r.ContentType != "" {
		line += "\t" + r.ContentType
	}
	if r.ServerFilename != "" {
		line += "\t" + r.ServerFilename
	}
	if !r.LastModified.IsZero() {
		line += "\tmodified " + humanize.RelTime(r.LastModified, time.Now(), "ago", "from now")
	}
	return line
}
