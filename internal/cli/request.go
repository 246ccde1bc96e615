package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/s3conn/internal/connection"
)

var (
	reqHeaders []string
	reqData    string
	reqNoRetry bool
	reqInclude bool
	reqStats   bool
)

var requestCmd = &cobra.Command{
	Use:   "request METHOD PATH",
	Short: "Send one signed request",
	Long: `Send one signed request to the configured bucket and print the body.

PATH is relative to the bucket and may carry a sub-resource query.

Examples:
  s3conn request GET /photos/cat.jpg
  s3conn request GET /photos/cat.jpg -H "Range: bytes=0-1023"
  s3conn request PUT /notes.txt --data @notes.txt
  s3conn request DELETE /notes.txt -i`,
	Args: cobra.ExactArgs(2),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringArrayVarP(&reqHeaders, "header", "H", nil, `Extra header "Key: Value" (repeatable)`)
	requestCmd.Flags().StringVarP(&reqData, "data", "d", "", "Request body, or @file to read it from a file")
	requestCmd.Flags().BoolVar(&reqNoRetry, "no-retry", false, "Fail on the first transport or HTTP error")
	requestCmd.Flags().BoolVarP(&reqInclude, "include", "i", false, "Print response status and headers")
	requestCmd.Flags().BoolVar(&reqStats, "stats", false, "Print connection stats after the request")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	method := strings.ToUpper(args[0])
	path := args[1]

	body, err := readBody(reqData)
	if err != nil {
		return err
	}
	hdr, err := parseHeaders(reqHeaders)
	if err != nil {
		return err
	}

	a, err := newApp(1)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := a.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		c.AddOutputHeader(k, v)
	}
	resp, err := c.Do(ctx, path, method, body, !reqNoRetry)
	a.pool.Release(c)

	out := cmd.OutOrStdout()
	if err != nil {
		if reqStats {
			fmt.Fprint(out, a.pool.RenderStats(connection.TextFormat))
		}
		return err
	}

	if reqInclude {
		printResponseHead(out, resp)
	}
	out.Write(resp.Body)

	if reqStats {
		fmt.Fprintln(out)
		fmt.Fprint(out, a.pool.RenderStats(connection.TextFormat))
	}
	return nil
}

func printResponseHead(w io.Writer, resp *connection.Response) {
	status := fmt.Sprintf("%s %d %s", CheckMark, resp.StatusCode, http.StatusText(resp.StatusCode))
	fmt.Fprintln(w, paint(codeStyle(resp.StatusCode), status))
	if resp.Retries > 0 || resp.Redirects > 0 {
		fmt.Fprintln(w, paint(DimStyle, fmt.Sprintf("retries: %d, redirects: %d", resp.Retries, resp.Redirects)))
	}

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s %s\n", paint(LabelStyle, k+":"), strings.Join(resp.Header[k], ", "))
	}
	fmt.Fprintln(w)
}

func readBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if strings.HasPrefix(data, "@") {
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return b, nil
	}
	return []byte(data), nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
