package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <host>",
	Short: "Register a target with a running reachmon",
	Long: `Register a target through the HTTP API of a running reachmon.

The API base defaults to $API_BASE (or http://localhost:8080) and the
key to $ADMIN_API_KEY.

Example:
  reachmon add 198.51.100.7 --name "edge router"
  reachmon add db.internal --port 5432 --interval 30s`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Stop monitoring a target on a running reachmon",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(addCmd, removeCmd)
	for _, c := range []*cobra.Command{addCmd, removeCmd} {
		c.Flags().String("api", envOr("API_BASE", "http://localhost:8080"), "reachmon API base URL")
		c.Flags().String("key", os.Getenv("ADMIN_API_KEY"), "admin API key")
	}
	addCmd.Flags().IntP("port", "p", 0, "TCP port (0 monitors with ICMP echo)")
	addCmd.Flags().String("name", "", "display name")
	addCmd.Flags().Duration("interval", 0, "probe interval (server default when unset)")
	addCmd.Flags().Duration("timeout", 0, "probe timeout (server default when unset)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// apiCall sends body as JSON and returns the response body. Non-2xx
// responses become errors carrying the server's message.
func apiCall(cmd *cobra.Command, method, path string, body any) ([]byte, error) {
	base, _ := cmd.Flags().GetString("api")
	key, _ := cmd.Flags().GetString("key")

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("API returned %s", resp.Status)
	}
	return data, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	name, _ := cmd.Flags().GetString("name")
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	payload := map[string]any{"host": args[0]}
	if port != 0 {
		payload["port"] = port
	}
	if name != "" {
		payload["name"] = name
	}
	if interval > 0 {
		payload["interval"] = interval.String()
	}
	if timeout > 0 {
		payload["timeout"] = timeout.String()
	}

	data, err := apiCall(cmd, http.MethodPost, "/api/targets", payload)
	if err != nil {
		return err
	}
	var added struct {
		ID       string `json:"id"`
		Interval string `json:"interval"`
	}
	if err := json.Unmarshal(data, &added); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (id %s, every %s)\n", args[0], added.ID, added.Interval)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	if _, err := apiCall(cmd, http.MethodDelete, "/api/targets/"+args[0], nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
