package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the lookup cache of a running API",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats struct {
				TotalRequests     uint64  `json:"total_requests"`
				CacheHits         uint64  `json:"cache_hits"`
				CacheMisses       uint64  `json:"cache_misses"`
				HitRatePercent    float64 `json:"hit_rate_percent"`
				AvgHitLatencyMS   float64 `json:"avg_hit_latency_ms"`
				AvgMissLatencyMS  float64 `json:"avg_miss_latency_ms"`
				ImprovementFactor float64 `json:"improvement_factor"`
			}
			if err := callAPI(cmd.Context(), http.MethodGet, apiURL, "/v1/cache/stats", nil, &stats); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Requests:     %d\nHits:         %d\nMisses:       %d\nHit rate:     %.1f%%\nAvg hit:      %.2f ms\nAvg miss:     %.2f ms\nImprovement:  %.1fx\n",
				stats.TotalRequests, stats.CacheHits, stats.CacheMisses, stats.HitRatePercent,
				stats.AvgHitLatencyMS, stats.AvgMissLatencyMS, stats.ImprovementFactor)
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callAPI(cmd.Context(), http.MethodPost, apiURL, "/v1/cache/reset", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache statistics reset.")
			return nil
		},
	}

	var (
		subject  string
		factType string
		all      bool
	)
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate cached lookups on every instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && strings.TrimSpace(subject) == "" {
				return fmt.Errorf("either --subject or --all is required")
			}
			body := map[string]any{"subject_id": subject, "fact_type": factType, "all": all}
			if err := callAPI(cmd.Context(), http.MethodPost, apiURL, "/v1/cache/invalidate", body, nil); err != nil {
				return err
			}
			if all {
				fmt.Fprintln(cmd.OutOrStdout(), "All cached lookups invalidated.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cached lookups for %s invalidated.\n", subject)
			}
			return nil
		},
	}
	invalidateCmd.Flags().StringVar(&subject, "subject", "", "property id or name")
	invalidateCmd.Flags().StringVar(&factType, "fact-type", "", "limit to one fact type")
	invalidateCmd.Flags().BoolVar(&all, "all", false, "invalidate every cached lookup")

	cmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "base URL of the API")
	cmd.AddCommand(statsCmd, resetCmd, invalidateCmd)
	return cmd
}

func callAPI(ctx context.Context, method, baseURL, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
