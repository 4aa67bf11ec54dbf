package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/download"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/tui"
	"github.com/surge-downloader/trickle/internal/utils"
)

// readClipboard is replaced in tests
var readClipboard = clipboard.ReadAll

type getOptions struct {
	batch     string
	output    string
	headless  bool
	jsonOut   bool
	clipboard bool
}

var getCmd = &cobra.Command{
	Use:   "get [url]...",
	Short: "Download one or more URLs",
	Long: `get downloads each URL to the output directory. Progress is shown in
the terminal UI, or printed one line per event with --headless.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := getOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runGet(cmd, args, opts)
	},
}

func init() {
	addDownloadFlags(getCmd)
	getCmd.Flags().Bool("headless", false, "Print progress lines instead of starting the TUI")
	getCmd.Flags().Bool("json", false, "Print events as JSON lines (implies --headless)")
	rootCmd.AddCommand(getCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("batch", "b", "", "File containing URLs to download (text, or YAML with a urls list)")
	cmd.Flags().StringP("output", "o", "", "Output directory (default from settings)")
	cmd.Flags().Bool("clipboard", false, "Also download URLs found on the clipboard")
}

func getOptionsFromFlags(cmd *cobra.Command) (getOptions, error) {
	var opts getOptions
	var err error
	if opts.batch, err = cmd.Flags().GetString("batch"); err != nil {
		return opts, err
	}
	if opts.output, err = cmd.Flags().GetString("output"); err != nil {
		return opts, err
	}
	if opts.clipboard, err = cmd.Flags().GetBool("clipboard"); err != nil {
		return opts, err
	}
	if cmd.Flags().Lookup("headless") != nil {
		if opts.headless, err = cmd.Flags().GetBool("headless"); err != nil {
			return opts, err
		}
		if opts.jsonOut, err = cmd.Flags().GetBool("json"); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// collectURLs merges arguments, the batch file and the clipboard.
func collectURLs(args []string, opts getOptions) ([]string, error) {
	urls := append([]string(nil), args...)

	if opts.batch != "" {
		fileURLs, err := readURLsFromFile(opts.batch)
		if err != nil {
			return nil, fmt.Errorf("error reading batch file: %w", err)
		}
		urls = append(urls, fileURLs...)
	}

	if opts.clipboard {
		text, err := readClipboard()
		if err != nil {
			return nil, fmt.Errorf("failed to read clipboard: %w", err)
		}
		urls = append(urls, urlsFromText(text)...)
	}

	return dedupe(urls), nil
}

func runGet(cmd *cobra.Command, args []string, opts getOptions) error {
	urls, err := collectURLs(args, opts)
	if err != nil {
		return err
	}

	mgr := newManager(opts.output)

	if opts.headless || opts.jsonOut {
		if len(urls) == 0 {
			shutdown(mgr)
			return errors.New("no URLs given")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runHeadless(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), mgr, urls, opts.jsonOut)
	}
	return runTUI(mgr, urls)
}

// runHeadless adds every URL and prints events until each accepted
// download has finished.
func runHeadless(ctx context.Context, out, errOut io.Writer, mgr *download.Manager, urls []string, jsonOut bool) error {
	defer shutdown(mgr)

	pending, failures := 0, 0
	for _, u := range urls {
		if _, err := mgr.Add(u); err != nil {
			fmt.Fprintf(errOut, "Skipping %s: %v\n", u, err)
			failures++
			continue
		}
		pending++
	}

	for pending > 0 {
		select {
		case e := <-mgr.Events():
			if err := printEvent(out, e, jsonOut); err != nil {
				return err
			}
			if !events.IsTerminal(e) {
				continue
			}
			pending--
			switch e.(type) {
			case events.FailedMsg, events.CancelledMsg:
				failures++
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d downloads did not complete", failures, len(urls))
	}
	return nil
}

func printEvent(w io.Writer, e events.Event, jsonOut bool) error {
	if jsonOut {
		data, err := events.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, formatEvent(e))
	return err
}

// formatEvent renders one event as a headless status line.
func formatEvent(e events.Event) string {
	id := shortID(e.ID())
	switch m := e.(type) {
	case events.StartedMsg:
		return fmt.Sprintf("[%s] Downloading (size unknown)... %s", id, m.Filename)
	case events.PercentMsg:
		return fmt.Sprintf("[%s] Downloading: %d%%", id, m.Percent)
	case events.BytesMsg:
		return fmt.Sprintf("[%s] Downloaded: %s", id, utils.FormatBytes(m.Bytes))
	case events.CompleteMsg:
		line := fmt.Sprintf("[%s] Completed: %s (%s)", id, m.DestPath, utils.FormatBytes(m.Total))
		if m.MimeType != "" {
			line += " " + m.MimeType
		}
		return line
	case events.CancelledMsg:
		return fmt.Sprintf("[%s] Cancelled after %s", id, utils.FormatBytes(m.Downloaded))
	case events.FailedMsg:
		return fmt.Sprintf("[%s] Error! %v", id, m.Err)
	default:
		return fmt.Sprintf("[%s] %T", id, e)
	}
}

// runTUI adds the URLs and hands the manager to the terminal UI.
func runTUI(mgr *download.Manager, urls []string) error {
	var opts []tui.ModelOption
	for _, u := range urls {
		id, err := mgr.Add(u)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", u, err)
			continue
		}
		opts = append(opts, tui.WithDownload(id, u))
	}

	m := tui.InitialRootModel(mgr, settings, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err := p.Run()
	shutdown(mgr)
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
