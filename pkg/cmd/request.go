package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/reauth/pkg/client"
	"github.com/telekom/reauth/pkg/output"
)

func NewRequestCommand() *cobra.Command {
	var (
		data    string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request",
		Long: "Send a request to the API server with the stored bearer token. " +
			"An expired token is refreshed once and the request is replayed.",
		Example: "  reauth request GET /api/users\n  reauth request POST /api/items -d '{\"name\":\"x\"}'\n  reauth request PUT /api/items/1 -d @item.json",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			c, _, err := buildClient(rt)
			if err != nil {
				return err
			}

			body, err := readData(data)
			if err != nil {
				return err
			}
			var payload io.Reader
			if body != nil {
				payload = bytes.NewReader(body)
			}
			req, err := c.NewRequest(cmd.Context(), strings.ToUpper(args[0]), args[1], payload)
			if err != nil {
				return err
			}
			for _, h := range headers {
				key, value, ok := splitHeader(h)
				if !ok {
					return fmt.Errorf("invalid header %q, expected 'Name: value'", h)
				}
				req.Header.Add(key, value)
			}
			if body != nil && req.Header.Get("Content-Type") == "" && json.Valid(body) {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.Do(req)
			if err != nil {
				if client.Kind(err) != "other" {
					// Already shown by the diagnostics notifier.
					cmd.SilenceErrors = true
				}
				return err
			}
			defer func() {
				_ = resp.Body.Close()
			}()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			rt.log().Debugw("Response received", "status", resp.StatusCode, "bytes", len(respBody))
			return output.WriteBody(rt.Writer(), format, respBody)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body, or @file to read it from a file")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra header 'Name: value' (repeatable)")
	return cmd
}

func readData(data string) ([]byte, error) {
	switch {
	case data == "":
		return nil, nil
	case strings.HasPrefix(data, "@"):
		content, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		return content, nil
	default:
		return []byte(data), nil
	}
}

func splitHeader(h string) (string, string, bool) {
	key, value, ok := strings.Cut(h, ":")
	if !ok {
		key, value, ok = strings.Cut(h, "=")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}
