package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/halcyon/botforge/internal/config"
)

// --- agents ---

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage chatbot agents",
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new agent",
	Long: `Create a new agent.

Examples:
  botforge agents create --name "Support Bot" --instructions "Answer politely."
  botforge agents create --name "Docs Bot" --description "Answers from the docs" --public`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		instructions, _ := cmd.Flags().GetString("instructions")
		public, _ := cmd.Flags().GetBool("public")

		if name == "" {
			return fmt.Errorf("--name is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"name":         name,
			"description":  description,
			"instructions": instructions,
			"public":       public,
			"active":       true,
		}
		resp, err := client.post("/agents", req)
		if err != nil {
			return err
		}

		var agent map[string]any
		if err := decodeJSON(resp, &agent); err != nil {
			return err
		}

		printSuccess("Created agent %s", agent["id"])
		if agent["assistant_id"] == nil || agent["assistant_id"] == "" {
			printWarning("remote assistant not created yet; run `botforge fix-missing`")
		}
		return nil
	},
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/agents")
		if err != nil {
			return err
		}

		var out struct {
			Agents []map[string]any `json:"agents"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Agents) == 0 {
			printStep("No agents yet. Create one with `botforge agents create`.")
			return nil
		}
		for _, a := range out.Agents {
			ready := "ready"
			if a["assistant_id"] == nil || a["assistant_id"] == "" {
				ready = "no assistant"
			}
			fmt.Fprintf(os.Stdout, "%s  %s (%s)\n", a["id"], a["name"], ready)
		}
		return nil
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/agents/" + args[0])
		if err != nil {
			return err
		}

		var agent any
		if err := decodeJSON(resp, &agent); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(agent)
	},
}

var agentsUpdateCmd = &cobra.Command{
	Use:   "update <agent-id>",
	Short: "Update an agent's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		for _, key := range []string{"name", "description", "instructions"} {
			if cmd.Flags().Changed(key) {
				v, _ := cmd.Flags().GetString(key)
				req[key] = v
			}
		}
		for _, key := range []string{"public", "active"} {
			if cmd.Flags().Changed(key) {
				v, _ := cmd.Flags().GetBool(key)
				req[key] = v
			}
		}
		if len(req) == 0 {
			return fmt.Errorf("nothing to update: pass at least one flag")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/agents/"+args[0], req)
		if err != nil {
			return err
		}

		var agent map[string]any
		if err := decodeJSON(resp, &agent); err != nil {
			return err
		}

		printSuccess("Updated agent %s", args[0])
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Delete an agent and its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/agents/" + args[0])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted agent %s", args[0])
		return nil
	},
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage an agent's knowledge sources",
}

var sourcesTextCmd = &cobra.Command{
	Use:   "text <agent-id>",
	Short: "Ingest plain text",
	Long: `Ingest plain text as a knowledge source.

Examples:
  botforge sources text AGENT --text "Our office hours are 9 to 5."
  botforge sources text AGENT --file ./faq.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/agents/"+args[0]+"/sources/text", map[string]any{"text": text})
		if err != nil {
			return err
		}
		return reportIngest(resp)
	},
}

var sourcesFileCmd = &cobra.Command{
	Use:   "file <agent-id> <path>",
	Short: "Ingest a file (PDF text is extracted before indexing)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"filename": filepath.Base(args[1]),
			"content":  base64.StdEncoding.EncodeToString(data),
		}
		resp, err := client.post("/agents/"+args[0]+"/sources/file", req)
		if err != nil {
			return err
		}
		return reportIngest(resp)
	},
}

var sourcesQACmd = &cobra.Command{
	Use:   "qa <agent-id>",
	Short: "Ingest a question/answer pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question, _ := cmd.Flags().GetString("question")
		answer, _ := cmd.Flags().GetString("answer")

		if question == "" || answer == "" {
			return fmt.Errorf("--question and --answer are both required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"question": question, "answer": answer}
		resp, err := client.post("/agents/"+args[0]+"/sources/qa", req)
		if err != nil {
			return err
		}
		return reportIngest(resp)
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list <agent-id>",
	Short: "List an agent's sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/agents/" + args[0] + "/sources")
		if err != nil {
			return err
		}

		var out struct {
			Sources []map[string]any `json:"sources"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Sources) == 0 {
			printStep("No sources yet.")
			return nil
		}
		for _, s := range out.Sources {
			state := "indexed"
			if s["indexed"] != true {
				state = "pending"
			}
			fmt.Fprintf(os.Stdout, "%s  %-8s %6.0f chars  %s\n", s["id"], s["type"], s["chars"], state)
		}
		return nil
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id> <source-id>",
	Short: "Delete a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/agents/" + args[0] + "/sources/" + args[1])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted source %s", args[1])
		return nil
	},
}

// --- crawl ---

var crawlCmd = &cobra.Command{
	Use:   "crawl <agent-id> <url>",
	Short: "Crawl a website into an agent's knowledge",
	Long: `Crawl a website and ingest the pages as knowledge sources.

Examples:
  botforge crawl AGENT https://example.com --limit 25
  botforge crawl AGENT https://example.com --per-page --format html`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")
		antiBot, _ := cmd.Flags().GetBool("anti-bot")
		proxies, _ := cmd.Flags().GetBool("proxies")
		subdomains, _ := cmd.Flags().GetBool("subdomains")
		perPage, _ := cmd.Flags().GetBool("per-page")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Crawling %s ...", args[1])
		req := map[string]any{
			"url":           args[1],
			"limit":         limit,
			"return_format": format,
			"anti_bot":      antiBot,
			"proxies":       proxies,
			"subdomains":    subdomains,
			"per_page":      perPage,
		}
		resp, err := client.post("/agents/"+args[0]+"/crawl", req)
		if err != nil {
			return err
		}

		var job map[string]any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		printSuccess("Imported %v page(s) (job %s)", job["result_count"], job["id"])
		return nil
	},
}

var crawlJobsCmd = &cobra.Command{
	Use:   "jobs <agent-id>",
	Short: "List an agent's crawl jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/agents/" + args[0] + "/crawl")
		if err != nil {
			return err
		}

		var out struct {
			Jobs []map[string]any `json:"jobs"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Jobs) == 0 {
			printStep("No crawl jobs yet.")
			return nil
		}
		for _, j := range out.Jobs {
			fmt.Fprintf(os.Stdout, "%s  %-10s %4.0f pages  %s\n", j["id"], j["status"], j["result_count"], j["url"])
		}
		return nil
	},
}

// --- retrain / fix-missing ---

var retrainCmd = &cobra.Command{
	Use:   "retrain <agent-id>",
	Short: "Rebuild the remote assistant from local agent state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/agents/"+args[0]+"/retrain", nil)
		if err != nil {
			return err
		}

		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Agent %s retrained", args[0])
		return nil
	},
}

var fixMissingCmd = &cobra.Command{
	Use:   "fix-missing",
	Short: "Create remote assistants for agents that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/agents/fix-missing", nil)
		if err != nil {
			return err
		}

		var out struct {
			Created int               `json:"created"`
			Failed  map[string]string `json:"failed"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Created %d assistant(s)", out.Created)
		for id, msg := range out.Failed {
			printError("agent %s: %s", id, msg)
		}
		return nil
	},
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <agent-id>",
	Short: "Send a message to an agent",
	Long: `Send a message to an agent and print the reply.

Pass --thread to continue an earlier conversation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		threadID, _ := cmd.Flags().GetString("thread")

		if message == "" {
			return fmt.Errorf("--message is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"message": message, "thread_id": threadID}
		resp, err := client.post("/agents/"+args[0]+"/chat", req)
		if err != nil {
			return err
		}

		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, out["reply"])
		printStatus("Thread", "%s", out["thread_id"])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage botforge configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, info := range config.ShowAll(cfg) {
			printStatus(info.Key, "%s", info.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

// reportIngest prints the outcome of an ingestion call, distinguishing
// indexed sources from saved-but-pending ones.
func reportIngest(resp *http.Response) error {
	var out struct {
		Status  string `json:"status"`
		Warning string `json:"warning"`
		Source  struct {
			ID    string `json:"id"`
			Chars int    `json:"chars"`
		} `json:"source"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}

	switch out.Status {
	case "saved":
		printWarning("Source %s saved, indexing pending: %s", out.Source.ID, out.Warning)
	default:
		printSuccess("Source %s indexed (%d chars)", out.Source.ID, out.Source.Chars)
	}
	return nil
}

func init() {
	agentsCreateCmd.Flags().String("name", "", "agent name")
	agentsCreateCmd.Flags().String("description", "", "agent description")
	agentsCreateCmd.Flags().String("instructions", "", "system instructions for the agent")
	agentsCreateCmd.Flags().Bool("public", false, "make the agent public")
	agentsUpdateCmd.Flags().String("name", "", "new agent name")
	agentsUpdateCmd.Flags().String("description", "", "new description")
	agentsUpdateCmd.Flags().String("instructions", "", "new system instructions")
	agentsUpdateCmd.Flags().Bool("public", false, "make the agent public")
	agentsUpdateCmd.Flags().Bool("active", true, "activate or deactivate the agent")
	agentsCmd.AddCommand(agentsCreateCmd, agentsListCmd, agentsShowCmd, agentsUpdateCmd, agentsDeleteCmd)

	sourcesTextCmd.Flags().String("text", "", "text content to ingest")
	sourcesTextCmd.Flags().String("file", "", "read text content from a file")
	sourcesQACmd.Flags().String("question", "", "the question")
	sourcesQACmd.Flags().String("answer", "", "the answer")
	sourcesCmd.AddCommand(sourcesTextCmd, sourcesFileCmd, sourcesQACmd, sourcesListCmd, sourcesDeleteCmd)

	crawlCmd.Flags().Int("limit", 0, "maximum pages to crawl (0 = server default)")
	crawlCmd.Flags().String("format", "", "return format: markdown, html or text")
	crawlCmd.Flags().Bool("anti-bot", false, "enable anti-bot measures")
	crawlCmd.Flags().Bool("proxies", false, "route the crawl through proxies")
	crawlCmd.Flags().Bool("subdomains", false, "include subdomains")
	crawlCmd.Flags().Bool("per-page", false, "store one source per page instead of one aggregate")
	crawlCmd.AddCommand(crawlJobsCmd)

	chatCmd.Flags().StringP("message", "m", "", "message to send")
	chatCmd.Flags().String("thread", "", "existing thread id to continue")

	configCmd.AddCommand(configShowCmd, configSetCmd)
}
