package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/contrarian/internal/config"
	"github.com/kalambet/contrarian/internal/jobs"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Upload a financial report and start an analysis job",
	Long: `Upload a financial report and start an analysis job.

Examples:
  contrarian analyze --file ./acme-2025.pdf --company "Acme Corp"
  contrarian analyze --file ./q2.pdf --company "Acme Corp" --type quarterly --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		company, _ := cmd.Flags().GetString("company")
		reportType, _ := cmd.Flags().GetString("type")
		wait, _ := cmd.Flags().GetBool("wait")

		if file == "" || company == "" {
			return fmt.Errorf("--file and --company are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postReport(file, company, reportType)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		jobID := result["job_id"]
		printSuccess("Started job %s", jobID)

		if !wait {
			fmt.Printf("%s\n", jobID)
			return nil
		}
		return pollJob(client, jobID)
	},
}

// pollJob polls until the job leaves the running states, printing progress.
func pollJob(client *apiClient, jobID string) error {
	lastStep := ""
	for {
		resp, err := client.get("/api/status/" + jobID)
		if err != nil {
			return err
		}

		var job jobs.Job
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		if job.CurrentStep != lastStep {
			printStatus("Step", "%s (%d%%)", job.CurrentStep, job.Progress)
			lastStep = job.CurrentStep
		}

		switch job.Status {
		case jobs.StatusCompleted:
			return printResult(job)
		case jobs.StatusFailed:
			printError("Job failed: %s", job.Error)
			return fmt.Errorf("job failed: %s", job.Error)
		}
		time.Sleep(2 * time.Second)
	}
}

func printResult(job jobs.Job) error {
	if job.Result == nil {
		return fmt.Errorf("completed job has no result")
	}
	r := job.Result

	fmt.Printf("\n%s\n", colorize(colorBold, r.CompanyName))
	printStatus("Signal", "%s (strength %d/10, confidence %s)",
		strings.ToUpper(r.Signal.SignalType), r.Signal.SignalStrength, r.Signal.Confidence)
	printStatus("News score", "%d (panic %s)", r.News.Score, r.News.PanicLevel)
	printStatus("Health score", "%d/10", r.Fundamentals.HealthScore)
	printStatus("Position", "%s (%d/10)", r.Peers.CompetitivePosition, r.Peers.RelativeStrength)
	if r.Signal.Summary != "" {
		fmt.Printf("\n  %s\n", r.Signal.Summary)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func init() {
	analyzeCmd.Flags().String("file", "", "path to the report file (.pdf, .txt or .md)")
	analyzeCmd.Flags().String("company", "", "company the report belongs to")
	analyzeCmd.Flags().String("type", "annual", "report type: annual or quarterly")
	analyzeCmd.Flags().Bool("wait", false, "poll until the job finishes and print the result")
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <job_id>",
	Short: "Show the status of an analysis job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/status/" + args[0])
		if err != nil {
			return err
		}

		var job any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <job_id> <question>",
	Short: "Ask a question about an analyzed company",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		question := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postJSON("/api/ask/"+jobID, map[string]string{"question": question})
		if err != nil {
			return err
		}

		var result struct {
			Answer string `json:"answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configSetCmd.Long = fmt.Sprintf("Set a configuration value.\n\nValid keys:\n  %s",
		strings.Join(config.ValidKeys(), "\n  "))
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
