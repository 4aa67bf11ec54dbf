package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/types"
)

var sourceCmd = &cobra.Command{
	Use:   "source <url>...",
	Short: "Print the text served at one or more URLs",
	Long: `source fetches each URL as text and prints it with normalised line
endings. Several URLs are fetched concurrently and printed in order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtime := types.ConvertRuntimeConfig(settings.ToRuntimeConfig())

		maxBytes, _ := cmd.Flags().GetString("max-bytes")
		if maxBytes != "" {
			n, err := parseSizeFlag(maxBytes)
			if err != nil {
				return fmt.Errorf("invalid --max-bytes: %w", err)
			}
			runtime.FetchMaxBytes = n
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runSource(ctx, cmd.OutOrStdout(), args, runtime, settings.Connections.MaxConcurrentDownloads)
	},
}

func init() {
	sourceCmd.Flags().String("max-bytes", "", `Largest page accepted, e.g. 1048576 or "2.0 MB" ("unlimited" disables the cap)`)
	rootCmd.AddCommand(sourceCmd)
}

// runSource fetches urls with at most limit requests in flight. A failed
// URL is reported in place and does not stop the others.
func runSource(ctx context.Context, w io.Writer, urls []string, runtime *types.RuntimeConfig, limit int) error {
	client := engine.NewHTTPClient(runtime)
	texts := make([]string, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, u := range urls {
		g.Go(func() error {
			texts[i], errs[i] = engine.FetchText(ctx, client, u, runtime)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, text := range texts {
		if len(urls) > 1 {
			fmt.Fprintf(w, "==> %s <==\n", urls[i])
		}
		if errs[i] != nil {
			failed = append(failed, errs[i])
			if len(urls) > 1 {
				fmt.Fprintf(w, "error: %v\n", errs[i])
			}
			continue
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d fetches failed: %w", len(failed), len(urls), errors.Join(failed...))
	}
	return nil
}
