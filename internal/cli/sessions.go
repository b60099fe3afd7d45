package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TaskPilot/TaskPilot/internal/agent"
	"github.com/TaskPilot/TaskPilot/internal/provider"
	"github.com/TaskPilot/TaskPilot/internal/resume"
	"github.com/TaskPilot/TaskPilot/internal/session"
)

var (
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recent sessions for a project",
		RunE:  runSessionsList,
	}

	sessionsShowCmd = &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a reconstructed session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsShow,
	}

	sessionsCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Alert on recently stuck or errored sessions",
		RunE:  runSessionsCheck,
	}

	sessionsResumeCmd = &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Generate a resume prompt for an interrupted session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsResume,
	}
)

func init() {
	sessionsCmd.PersistentFlags().String("project", "", "Project path (default: current directory)")

	sessionsListCmd.Flags().Bool("stuck", false, "Only sessions that look stuck, errored, or abandoned")
	sessionsListCmd.Flags().String("status", "", "Filter by status")
	sessionsListCmd.Flags().Int("limit", 10, "Number of sessions to list")
	sessionsListCmd.Flags().Bool("json", false, "Output machine-readable JSON")

	sessionsResumeCmd.Flags().Bool("minimal", false, "One-paragraph resume prompt")
	sessionsResumeCmd.Flags().Bool("full", false, "Include recent message history")
	sessionsResumeCmd.Flags().String("invoke", "", "Feed the resume prompt to this agent instead of printing it")

	sessionsCheckCmd.Flags().Duration("max-age", 24*time.Hour, "Only consider sessions active within this window")
	sessionsCheckCmd.Flags().Bool("json", false, "Output machine-readable JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCheckCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsResumeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionProject(cmd *cobra.Command) string {
	project, _ := cmd.Flags().GetString("project")
	if project == "" {
		project = mustCwd()
	}
	return project
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	stuck, _ := cmd.Flags().GetBool("stuck")
	statusFilter, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	project := sessionProject(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	analyzer := session.NewAnalyzer(cfg.Paths.SessionsRoot)

	var sessions []*session.Session
	if stuck {
		sessions, err = analyzer.FindStuck(project)
	} else {
		var filter []session.Status
		if statusFilter != "" {
			filter = []session.Status{session.Status(statusFilter)}
		}
		sessions, err = analyzer.Recent(project, limit, filter)
	}
	if err != nil {
		return err
	}

	if asJSON {
		type row struct {
			SessionID    string    `json:"session_id"`
			Status       string    `json:"status"`
			Task         string    `json:"task"`
			LastActivity time.Time `json:"last_activity"`
			ToolCalls    int       `json:"tool_calls"`
			PendingTodos int       `json:"pending_todos"`
		}
		rows := make([]row, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, row{
				SessionID:    s.SessionID,
				Status:       string(s.Status),
				Task:         firstLine(s.InitialPrompt, 80),
				LastActivity: s.LastActivity,
				ToolCalls:    len(s.ToolCalls),
				PendingTodos: len(s.PendingTodos()),
			})
		}
		return printJSON(rows)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%-10s %-14s %s\n",
			shortSessionID(s.SessionID), colorSessionStatus(s.Status), firstLine(s.InitialPrompt, 70))
	}
	return nil
}

func runSessionsCheck(cmd *cobra.Command, args []string) error {
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	asJSON, _ := cmd.Flags().GetBool("json")
	project := sessionProject(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord := resume.NewCoordinator(session.NewAnalyzer(cfg.Paths.SessionsRoot))
	stuck, err := coord.CheckForStuckSessions(project, maxAge)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(stuck)
	}
	if len(stuck) == 0 {
		fmt.Println("No stuck sessions.")
		return nil
	}
	fmt.Println(resume.FormatAlert(stuck))
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	project := sessionProject(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord := resume.NewCoordinator(session.NewAnalyzer(cfg.Paths.SessionsRoot))
	s, err := coord.Find(project, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session:   %s\n", s.SessionID)
	fmt.Printf("Project:   %s\n", s.ProjectPath)
	fmt.Printf("Status:    %s\n", colorSessionStatus(s.Status))
	fmt.Printf("Started:   %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Printf("Last seen: %s\n", s.LastActivity.Format(time.RFC3339))
	fmt.Printf("Duration:  %.1f minutes\n", s.DurationMinutes())
	fmt.Printf("Messages:  %d, tool calls: %d\n", len(s.Messages), len(s.ToolCalls))
	if s.InitialPrompt != "" {
		fmt.Printf("Task:      %s\n", firstLine(s.InitialPrompt, 100))
	}
	if s.LastError != "" {
		fmt.Printf("Error:     %s\n", color.RedString(firstLine(s.LastError, 100)))
	}
	if todos := s.Todos; len(todos) > 0 {
		fmt.Println("Todos:")
		for _, t := range todos {
			marker := " "
			if t.Status == "completed" {
				marker = "x"
			} else if t.Status == "in_progress" {
				marker = ">"
			}
			fmt.Printf("  [%s] %s\n", marker, t.Content)
		}
	}
	for _, f := range s.FilesWritten() {
		fmt.Printf("Modified:  %s\n", f)
	}
	return nil
}

func runSessionsResume(cmd *cobra.Command, args []string) error {
	minimal, _ := cmd.Flags().GetBool("minimal")
	full, _ := cmd.Flags().GetBool("full")
	invokeAgent, _ := cmd.Flags().GetString("invoke")
	project := sessionProject(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord := resume.NewCoordinator(session.NewAnalyzer(cfg.Paths.SessionsRoot))
	s, err := coord.Find(project, args[0])
	if err != nil {
		return err
	}

	var prompt string
	if minimal {
		prompt = coord.GenerateMinimal(s)
	} else {
		prompt = coord.GeneratePrompt(s, resume.PromptOptions{IncludeMessages: full})
	}

	if invokeAgent == "" {
		fmt.Println(prompt)
		return nil
	}

	l := openLedger(cfg)
	if l != nil {
		defer l.Close()
	}
	var recorder agent.Recorder
	if l != nil {
		recorder = l
	}
	runtime := provider.NewSubprocessRuntime(cfg.Runtime.Command, cfg.Runtime.Args...)
	orch := agent.New(cfg, newStore(cfg), runtime, recorder)

	res, err := orch.Invoke(context.Background(), agent.ContextFromEnv(), agent.Request{
		Agent: invokeAgent,
		Task:  prompt,
	})
	if err != nil {
		return err
	}
	fmt.Println(color.GreenString("✓ Resumed") + fmt.Sprintf(" run %s (%dms)", res.RunID, res.DurationMS))
	return nil
}

func colorSessionStatus(s session.Status) string {
	switch s {
	case session.StatusCompleted:
		return color.GreenString(string(s))
	case session.StatusError:
		return color.RedString(string(s))
	case session.StatusStuck, session.StatusAbandoned:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
