package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cairnlabs/cairn/pkg/command"
	"github.com/cairnlabs/cairn/pkg/config"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/orchestrator"
	"github.com/cairnlabs/cairn/pkg/overlay"
	"github.com/cairnlabs/cairn/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "cairn",
	Short: "Cairn - Sandboxed coding agents for your project",
	Long: `Cairn turns natural-language tasks into sandboxed coding agents.

Each agent asks a local LLM for a Lua script, runs it against a private
copy-on-write view of the project, and submits the result for review.
Accepted changes merge into the shared stable tree; rejected ones are
discarded. The project directory itself is never written.

Start the service with 'cairn up', then drive it from another terminal:

  cairn queue "add retry logic to the fetcher"
  cairn list-agents
  cairn accept agent-1a2b3c4d`,
	Version: Version,
}

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("Cairn %s (commit: %s, built: %s)\n", Version, Commit, BuildTime))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a cairn.yaml config file")
	rootCmd.PersistentFlags().String("project-root", "", "Project directory to operate on (default: current directory)")
	rootCmd.PersistentFlags().String("home", "", "Cairn home directory (default: ~/.cairn)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig resolves configuration for one command invocation. Flags
// override the environment, which overrides the optional YAML file.
// One-shot commands log to stderr so stdout stays scriptable.
func loadConfig(cmd *cobra.Command, logOut io.Writer) (config.Config, error) {
	// A .env next to the invocation is a convenience, not a requirement.
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if v, _ := cmd.Flags().GetString("project-root"); v != "" {
		cfg.Paths.ProjectRoot = v
	}
	if v, _ := cmd.Flags().GetString("home"); v != "" {
		cfg.Paths.CairnHome = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	lc := cfg.LogConfig()
	lc.Output = logOut
	log.Init(lc)
	return cfg, nil
}

var queueCmd = &cobra.Command{
	Use:   "queue <task>",
	Short: "Queue a task at normal priority",
	Long: `Queue a natural-language task for the next free agent slot.

Examples:
  cairn queue "add input validation to the config loader"
  cairn queue --priority urgent "fix the failing release build"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueue(cmd, args, "queue")
	},
}

var spawnCmd = &cobra.Command{
	Use:   "spawn <task>",
	Short: "Queue a task at high priority",
	Long: `Queue a task ahead of normal work. spawn is queue with the default
priority raised to high; an explicit --priority still wins.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueue(cmd, args, "spawn")
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <agent-id>",
	Short: "Accept a reviewing agent and merge its changes into stable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, "accept", args[0])
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <agent-id>",
	Short: "Reject a reviewing agent and discard its changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, "reject", args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <agent-id>",
	Short: "Show one agent's lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.Parse("status", map[string]any{"agent_id": args[0]})
		if err != nil {
			return err
		}
		return runCommand(cmd, c)
	},
}

var listAgentsCmd = &cobra.Command{
	Use:   "list-agents",
	Short: "List every known agent, live and persisted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.Parse("list_agents", nil)
		if err != nil {
			return err
		}
		return runCommand(cmd, c)
	},
}

func init() {
	queueCmd.Flags().String("priority", "", "Task priority: low, normal, high, urgent")
	spawnCmd.Flags().String("priority", "", "Task priority: low, normal, high, urgent")

	rootCmd.AddCommand(queueCmd, spawnCmd, acceptCmd, rejectCmd, statusCmd, listAgentsCmd)
}

func runQueue(cmd *cobra.Command, args []string, tag string) error {
	payload := map[string]any{"task": strings.Join(args, " ")}
	if p, _ := cmd.Flags().GetString("priority"); p != "" {
		payload["priority"] = p
	}
	c, err := command.Parse(tag, payload)
	if err != nil {
		return err
	}
	return runCommand(cmd, c)
}

func runReview(cmd *cobra.Command, tag, agentID string) error {
	c, err := command.Parse(tag, map[string]any{"agent_id": agentID})
	if err != nil {
		return err
	}
	return runCommand(cmd, c)
}

// runCommand executes one parsed command against a passive orchestrator
// instance. When a running 'cairn up' already holds the store, mutating
// commands are handed over as signal files and read-only ones answer
// from the last state snapshot.
func runCommand(cmd *cobra.Command, c *command.Command) error {
	cfg, err := loadConfig(cmd, os.Stderr)
	if err != nil {
		return err
	}

	orch := orchestrator.New(cfg)
	if err := orch.Initialize(); err != nil {
		if overlay.IsLocked(err) {
			return runAgainstService(cfg, c)
		}
		return err
	}
	defer orch.Stop()

	res, err := orch.SubmitCommand(context.Background(), c)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && c.AgentID != "" {
			return fmt.Errorf("unknown agent %s", c.AgentID)
		}
		return err
	}
	printResult(cfg, c, res)
	return nil
}

// runAgainstService is the path taken when a running service holds the
// overlay store lock.
func runAgainstService(cfg config.Config, c *command.Command) error {
	switch c.Kind {
	case command.KindStatus:
		snap, err := orchestrator.ReadSnapshot(cfg.StateFile())
		if err != nil {
			return fmt.Errorf("service is running but its state snapshot is unreadable: %v", err)
		}
		rec, ok := snap.Agents[c.AgentID]
		if !ok {
			return fmt.Errorf("unknown agent %s", c.AgentID)
		}
		printRecord(cfg, &rec)
		return nil

	case command.KindListAgents:
		snap, err := orchestrator.ReadSnapshot(cfg.StateFile())
		if err != nil {
			return fmt.Errorf("service is running but its state snapshot is unreadable: %v", err)
		}
		recs := make([]types.LifecycleRecord, 0, len(snap.Agents))
		for _, rec := range snap.Agents {
			recs = append(recs, rec)
		}
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
				return recs[i].AgentID < recs[j].AgentID
			}
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		})
		printRecords(recs)
		return nil

	default:
		name, err := writeSignalFile(cfg.SignalsDir(), c)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Handed %s to the running service\n", c.String())
		fmt.Printf("  Signal file: %s\n", name)
		return nil
	}
}

// writeSignalFile drops c into the signal directory for the service's
// poller. The payload lands under a temporary name first so the poller
// never reads a half-written file.
func writeSignalFile(dir string, c *command.Command) (string, error) {
	payload := c.Payload()
	payload["type"] = c.Tag()
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode signal: %v", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("%s-%d.json", c.Tag(), time.Now().UnixNano()))
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write signal file: %v", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return "", fmt.Errorf("failed to publish signal file: %v", err)
	}
	return name, nil
}

func printResult(cfg config.Config, c *command.Command, res *types.CommandResult) {
	switch c.Kind {
	case command.KindQueue:
		fmt.Printf("✓ Queued agent %s (priority=%s)\n", res.AgentID, c.Priority)
		fmt.Println("  No service is running; 'cairn up' will pick it up.")
	case command.KindAccept:
		fmt.Printf("✓ Agent %s accepted, changes merged into stable\n", c.AgentID)
	case command.KindReject:
		fmt.Printf("✓ Agent %s rejected, changes discarded\n", c.AgentID)
	case command.KindStatus:
		printRecord(cfg, res.Record)
	case command.KindListAgents:
		printRecords(res.Records)
	}
}

func printRecord(cfg config.Config, rec *types.LifecycleRecord) {
	fmt.Printf("Agent:     %s\n", rec.AgentID)
	fmt.Printf("State:     %s\n", rec.State)
	fmt.Printf("Priority:  %s\n", rec.Priority)
	fmt.Printf("Task:      %s\n", rec.Task)
	fmt.Printf("Created:   %s\n", rec.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("Updated:   %s\n", rec.StateChangedAt.Local().Format(time.RFC3339))
	if rec.Error != "" {
		fmt.Printf("Error:     %s\n", rec.Error)
	}
	if sub := rec.Submission; sub != nil {
		fmt.Printf("Summary:   %s\n", sub.Summary)
		for _, f := range sub.ChangedFiles {
			fmt.Printf("  changed: %s\n", f)
		}
	}
	if rec.State == types.StateReviewing {
		fmt.Printf("Workspace: %s\n", filepath.Join(cfg.WorkspacesDir(), rec.AgentID))
		fmt.Printf("\nReview with: cairn accept %s | cairn reject %s\n", rec.AgentID, rec.AgentID)
	}
}

func printRecords(recs []types.LifecycleRecord) {
	if len(recs) == 0 {
		fmt.Println("No agents found")
		return
	}
	fmt.Printf("%-16s %-11s %-8s %-5s %s\n", "AGENT", "STATE", "PRIORITY", "AGE", "TASK")
	for _, rec := range recs {
		fmt.Printf("%-16s %-11s %-8s %-5s %s\n",
			rec.AgentID, rec.State, rec.Priority, age(rec.CreatedAt), truncate(rec.Task, 60))
	}
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
