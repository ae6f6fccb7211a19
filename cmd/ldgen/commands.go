package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jstrand/ldgen/internal/api"
	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/schema"
)

// --- page ---

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Manage synced pages",
}

var pageSyncCmd = &cobra.Command{
	Use:   "sync <file.json>",
	Short: "Sync a page from a JSON file into the server",
	Long: `Sync a page from a JSON file into the server.

The file holds the page payload the CMS would send:
  {"id": "42", "title": "About us", "content": "<h1>...</h1>", "type": "page"}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parsing file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/pages", payload)
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Synced page %s", out["id"])
		return nil
	},
}

var pageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/pages?limit=%d", limit))
		if err != nil {
			return err
		}
		var pages []struct {
			ID         string    `json:"ID"`
			Title      string    `json:"Title"`
			Type       string    `json:"Type"`
			ModifiedAt time.Time `json:"ModifiedAt"`
		}
		if err := decodeJSON(resp, &pages); err != nil {
			return err
		}
		if len(pages) == 0 {
			fmt.Println("no pages synced")
			return nil
		}
		for _, p := range pages {
			fmt.Printf("  %s  %-8s %s  (%s)\n", colorize(colorBold, p.ID), p.Type, p.Title, p.ModifiedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var pageShowCmd = &cobra.Command{
	Use:   "show <page-id>",
	Short: "Show a synced page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/pages/"+args[0])
		if err != nil {
			return err
		}
		var page struct {
			ID                string
			Title             string
			Slug              string
			Excerpt           string
			Type              string
			TypeHint          string
			URL               string
			Categories        []string
			Tags              []string
			ConflictingSchema bool
			ModifiedAt        time.Time
		}
		if err := decodeJSON(resp, &page); err != nil {
			return err
		}

		printStatus("ID", "%s", page.ID)
		printStatus("Title", "%s", page.Title)
		printStatus("Type", "%s (hint: %s)", page.Type, page.TypeHint)
		if page.Slug != "" {
			printStatus("Slug", "%s", page.Slug)
		}
		if page.URL != "" {
			printStatus("URL", "%s", page.URL)
		}
		if page.Excerpt != "" {
			printStatus("Excerpt", "%s", page.Excerpt)
		}
		if len(page.Categories) > 0 {
			printStatus("Categories", "%s", strings.Join(page.Categories, ", "))
		}
		if len(page.Tags) > 0 {
			printStatus("Tags", "%s", strings.Join(page.Tags, ", "))
		}
		if page.ConflictingSchema {
			printStatus("Conflicting schema", "yes")
		}
		printStatus("Modified", "%s", page.ModifiedAt.Format(time.RFC3339))
		return nil
	},
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete <page-id>",
	Short: "Delete a synced page and its cached schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/pages/"+args[0])
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted page %s", args[0])
		return nil
	},
}

func init() {
	pageListCmd.Flags().Int("limit", 20, "maximum number of pages to list")
	pageCmd.AddCommand(pageSyncCmd)
	pageCmd.AddCommand(pageListCmd)
	pageCmd.AddCommand(pageShowCmd)
	pageCmd.AddCommand(pageDeleteCmd)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <page-id>",
	Short: "Generate schema.org JSON-LD for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		async, _ := cmd.Flags().GetBool("async")
		stream, _ := cmd.Flags().GetBool("stream")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/pages/%s/schema?force=%t", args[0], force)
		if async {
			path += "&async=true"
		}
		if stream {
			path += "&stream=true"
		}
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}

		if async {
			var out map[string]string
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			printSuccess("Queued regeneration (job %s)", out["job_id"])
			return nil
		}

		if stream {
			return consumeGenerateStream(resp)
		}

		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		var res api.GenerateResponse
		if err := json.Unmarshal(body, &res); err != nil {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}
		return printGenerateResult(res)
	},
}

func init() {
	generateCmd.Flags().Bool("force", false, "regenerate even when the cache is current")
	generateCmd.Flags().Bool("async", false, "queue the generation instead of waiting for it")
	generateCmd.Flags().Bool("stream", false, "print model output as it arrives")
}

func printGenerateResult(res api.GenerateResponse) error {
	switch pipeline.Outcome(res.Outcome) {
	case pipeline.OutcomeGenerated, pipeline.OutcomeCached:
		printSuccess("Schema %s (%s)", res.Outcome, res.DetectedType)
		fmt.Println(res.Schema)
	case pipeline.OutcomeCooldown, pipeline.OutcomeRateLimited:
		printWarning("Throttled (%s), retry in %ds", res.Outcome, res.RetryAfterSec)
	case pipeline.OutcomeContentTooShort:
		printWarning("Content too short to generate schema; enabling frontend fetching in the server config may recover more text")
	default:
		printError("Generation failed (%s): %s", res.ErrorKind, res.Error)
		return fmt.Errorf("generation failed")
	}
	return nil
}

// consumeGenerateStream reads the SSE response: delta frames are echoed as
// they arrive, the result frame is rendered like a non-streaming response.
func consumeGenerateStream(resp *http.Response) error {
	defer resp.Body.Close()

	sawDelta := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var frame struct {
			Delta  string                `json:"delta"`
			Result *api.GenerateResponse `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			continue
		}
		switch {
		case frame.Error != nil:
			if sawDelta {
				fmt.Println()
			}
			printError("Generation failed: %s", frame.Error.Message)
			return fmt.Errorf("generation failed")
		case frame.Result != nil:
			if sawDelta {
				fmt.Println()
			}
			return printGenerateResult(*frame.Result)
		case frame.Delta != "":
			fmt.Print(frame.Delta)
			sawDelta = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return fmt.Errorf("stream ended without a result")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status [page-id]",
	Short: "Show server status, or schema status for one page",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showPageStatus(cmd, args[0])
		}
		return showServerStatus(cmd)
	},
}

func showServerStatus(cmd *cobra.Command) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.httpClient.Get(client.baseURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		printStatus("Server", "running at %s", client.baseURL)
	} else {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	pagesResp, err := client.get(cmd.Context(), "/pages?limit=100")
	if err == nil {
		var pages []json.RawMessage
		if decodeJSON(pagesResp, &pages) == nil {
			printStatus("Pages", "%s", countLabel(len(pages), 100))
		}
	}
	return nil
}

func showPageStatus(cmd *cobra.Command, pageID string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(cmd.Context(), "/pages/"+pageID+"/schema")
	if err != nil {
		return err
	}
	var out struct {
		Status pipeline.PageStatus `json:"status"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}

	st := out.Status
	printStatus("Status", "%s", st.Status)
	if st.DetectedType != "" {
		printStatus("Type", "%s", st.DetectedType)
	}
	if !st.GeneratedAt.IsZero() {
		printStatus("Generated", "%s", st.GeneratedAt.Format(time.RFC3339))
	}
	printStatus("Stale", "%t", st.Stale)
	if !st.CooldownUntil.IsZero() {
		printStatus("Cooldown until", "%s", st.CooldownUntil.Format(time.RFC3339))
	}
	if st.LastError != "" {
		printStatus("Last error", "%s", st.LastError)
	}
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear <page-id>",
	Short: "Clear the cached schema and cooldown for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/pages/"+args[0]+"/schema")
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Cleared schema for page %s", args[0])
		return nil
	},
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate raw text as schema.org JSON-LD (reads stdin without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		res, err := schema.Validate(string(data))
		if err != nil {
			printError("Invalid: %v", err)
			return fmt.Errorf("validation failed")
		}

		printSuccess("Valid %s schema", res.Type)
		fmt.Println(res.JSON)
		return nil
	},
}

// --- test-connection ---

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the configured LLM provider responds",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Testing provider connection...")
		resp, err := client.post(cmd.Context(), "/test-connection", nil)
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("%s", out["message"])
		return nil
	},
}
