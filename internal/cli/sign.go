package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/s3conn/internal/connection"
	"github.com/s3conn/pkg/signer"
)

var (
	signDate    string
	signHeaders []string
	signData    string
)

var signCmd = &cobra.Command{
	Use:   "sign METHOD PATH",
	Short: "Print the Authorization header for a request",
	Long: `Compute the Authorization header a request would carry, without
sending it. The signing scheme follows s3.use_awsv4.

Examples:
  s3conn sign GET /photos/cat.jpg
  s3conn sign PUT /notes.txt --data @notes.txt --date 20240506T070809Z`,
	Args: cobra.ExactArgs(2),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signDate, "date", "", "Signing time as YYYYMMDDTHHMMSSZ (defaults to now)")
	signCmd.Flags().StringArrayVarP(&signHeaders, "header", "H", nil, `Extra header "Key: Value" (repeatable)`)
	signCmd.Flags().StringVarP(&signData, "data", "d", "", "Request body, or @file to read it from a file")
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	method := strings.ToUpper(args[0])

	now := time.Now().UTC()
	if signDate != "" {
		t, err := time.Parse(signer.TimeFormatV4, signDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		now = t
	}

	body, err := readBody(signData)
	if err != nil {
		return err
	}
	hdr, err := parseHeaders(signHeaders)
	if err != nil {
		return err
	}

	c, err := connection.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	for k, v := range hdr {
		c.AddOutputHeader(k, v)
	}
	auth, err := c.Authorization(args[1], method, body, now)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), auth)
	return nil
}
