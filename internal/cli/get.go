package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/s3conn/internal/connection"
)

var (
	getOutDir string
	getJobs   int
	getRange  string
	getStats  bool
)

var getCmd = &cobra.Command{
	Use:   "get KEY...",
	Short: "Fetch objects concurrently through the connection pool",
	Long: `Fetch one or more objects, one pooled connection per key at a time.

Without --out only a summary line per key is printed.

Examples:
  s3conn get a.txt b.txt c.txt
  s3conn get logs/2024-01-01.gz -o ./downloads -j 8
  s3conn get big.bin -r bytes=0-1048575 --stats`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutDir, "out", "o", "", "Directory to write objects to")
	getCmd.Flags().IntVarP(&getJobs, "jobs", "j", 0, "Concurrent requests (defaults to pool.size)")
	getCmd.Flags().StringVarP(&getRange, "range", "r", "", "Range header sent with every request")
	getCmd.Flags().BoolVar(&getStats, "stats", false, "Print connection stats when done")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := newApp(getJobs)
	if err != nil {
		return err
	}
	defer a.close()

	if getOutDir != "" {
		for _, key := range args {
			if _, err := outputPath(getOutDir, key); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(getOutDir, 0o755); err != nil {
			return err
		}
	}

	var hdr map[string]string
	if getRange != "" {
		hdr = map[string]string{"Range": getRange}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	report := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, line)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.pool.Size())
	for _, key := range args {
		key := key
		g.Go(func() error {
			start := time.Now()
			resp, err := a.pool.Do(ctx, "GET", objectPath(key), nil, hdr)
			if err != nil {
				report(paint(ErrorStyle, fmt.Sprintf("%s %s: %v", CrossMark, key, err)))
				return fmt.Errorf("%s: %w", key, err)
			}
			if getOutDir != "" {
				dst, err := outputPath(getOutDir, key)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(dst, resp.Body, 0o644); err != nil {
					return err
				}
			}
			report(fmt.Sprintf("%s %s %s %s",
				paint(SuccessStyle, ArrowDown),
				paint(ValueStyle, key),
				paint(codeStyle(resp.StatusCode), fmt.Sprintf("%d", resp.StatusCode)),
				paint(DimStyle, fmt.Sprintf("%d bytes in %s", len(resp.Body), time.Since(start).Round(time.Millisecond)))))
			return nil
		})
	}
	err = g.Wait()

	if getStats {
		fmt.Fprintln(out)
		fmt.Fprint(out, a.pool.RenderStats(connection.TextFormat))
	}
	return err
}

func objectPath(key string) string {
	if strings.HasPrefix(key, "/") {
		return key
	}
	return "/" + key
}

// outputPath maps key to a file under dir. Keys that would land outside dir
// are rejected.
func outputPath(dir, key string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q escapes the output directory", key)
	}
	return filepath.Join(dir, rel), nil
}
