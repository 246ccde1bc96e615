package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s3conn/internal/history"
)

var historyTail int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent requests",
	Long: `Show the most recent attempts recorded in the history file.

History is only persisted when history.path is set in the configuration.

Examples:
  s3conn history          Show the last 20 attempts
  s3conn history -n 100   Show the last 100 attempts`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyTail, "tail", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if cfg.History.Path == "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, paint(WarningStyle, "  No history file configured"))
		fmt.Fprintln(out, paint(DimStyle, "  Set history.path to keep a request history"))
		fmt.Fprintln(out)
		return nil
	}

	sink, err := history.NewBoltSink(cfg.History.Path, cfg.History.Capacity)
	if err != nil {
		return err
	}
	defer sink.Close()

	entries, err := sink.Recent(historyTail)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, paint(TitleStyle, " s3conn history "))
	fmt.Fprintln(out, paint(DimStyle, " "+cfg.History.Path))
	fmt.Fprintln(out, Divider(50))
	for _, e := range entries {
		printHistoryLine(out, e)
	}
	return nil
}

func printHistoryLine(w io.Writer, e history.Entry) {
	line := e.String()
	switch {
	case e.Code >= 500:
		line = paint(ErrorStyle, line)
	case e.Code >= 300:
		line = paint(WarningStyle, line)
	default:
		line = paint(DimStyle, line)
	}
	fmt.Fprintln(w, strings.TrimRight(line, "\n"))
}
