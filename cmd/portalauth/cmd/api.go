package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	apiMethod string
	apiData   string
)

var apiCmd = &cobra.Command{
	Use:   "api PATH",
	Short: "Send an authorized request to the backend and print the response",
	Long: `Send a request to PATH on the configured backend. The stored session's
token is attached automatically; the response body is written to stdout.`,
	Example: `  portalauth api /employee/get-employee-detail`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return runAPI(cmd.Context(), a, cfg.APIURL, apiMethod, args[0], apiData, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVarP(&apiMethod, "method", "X", http.MethodGet, "HTTP method")
	apiCmd.Flags().StringVarP(&apiData, "data", "d", "", "JSON request body")
}

func runAPI(ctx context.Context, a *app, baseURL, method, path, data string, w io.Writer) error {
	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	url := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if _, _, ok := a.svc.Token(); !ok {
			return errors.New("backend returned 401: not logged in")
		}
		return errors.New("backend returned 401: session rejected, log in again")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return nil
}
