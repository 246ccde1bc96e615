package cli

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s3conn/internal/health"
)

var probeWatch bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the bucket is reachable",
	Long: `Send a signed HEAD on the bucket root and report the result.

With --watch the probe repeats every health.interval and, when
metrics.enabled is set, /metrics, /healthz and /readyz are served until
interrupted.

Examples:
  s3conn probe
  s3conn probe --watch -c s3conn.yaml`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVarP(&probeWatch, "watch", "w", false, "Keep probing and serve metrics until interrupted")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := newApp(0)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(cfg.Health, a.pool, a.metrics)
	out := cmd.OutOrStdout()

	if !probeWatch {
		healthy := checker.Check(ctx)
		printProbe(out, a.pool.Endpoint().URL(), healthy, checker.LastError())
		if !healthy {
			return fmt.Errorf("endpoint %s is unhealthy", a.pool.Endpoint().URL())
		}
		return nil
	}

	a.serveMetrics(checker)
	checker.Start(ctx)
	fmt.Fprintln(out, paint(DimStyle, fmt.Sprintf("Probing %s every %s (Ctrl+C to exit)",
		a.pool.Endpoint().URL(), cfg.Health.Interval)))

	<-ctx.Done()
	checker.Stop()

	printProbe(out, a.pool.Endpoint().URL(), checker.IsHealthy(), checker.LastError())
	return nil
}

func printProbe(w io.Writer, url string, healthy bool, lastErr error) {
	var content strings.Builder

	content.WriteString(paint(SubtitleStyle, "Endpoint"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  %s %s\n", paint(LabelStyle, "url:"), paint(ValueStyle, url)))
	content.WriteString(fmt.Sprintf("  %s %s\n", paint(LabelStyle, "bucket:"), paint(ValueStyle, cfg.S3.BucketName)))
	content.WriteString("\n")

	content.WriteString(paint(SubtitleStyle, "Status"))
	content.WriteString("\n")
	if healthy {
		content.WriteString("  " + paint(SuccessStyle, CheckMark+" reachable") + "\n")
	} else {
		content.WriteString("  " + paint(ErrorStyle, CrossMark+" unreachable") + "\n")
		if lastErr != nil {
			content.WriteString("  " + paint(DimStyle, lastErr.Error()) + "\n")
		}
	}

	if styled {
		fmt.Fprintln(w, BorderStyle.Render(strings.TrimRight(content.String(), "\n")))
	} else {
		fmt.Fprint(w, content.String())
	}
}
