package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/twind/internal/config"
)

type source struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type askResult struct {
	Answer         string   `json:"answer"`
	Sources        []source `json:"sources"`
	Success        bool     `json:"success"`
	ProcessingTime int64    `json:"processingTime"`
	ConversationID string   `json:"conversationId"`
	Error          string   `json:"error"`
	Metrics        *struct {
		Path       string  `json:"path"`
		Confidence float64 `json:"confidence"`
	} `json:"metrics"`
}

type streamEvent struct {
	Type           string  `json:"type"`
	Stage          string  `json:"stage"`
	Message        string  `json:"message"`
	Content        string  `json:"content"`
	ConversationID string  `json:"conversationId"`
	Path           string  `json:"path"`
	Confidence     float64 `json:"confidence"`
}

type learningMetrics struct {
	TotalConversations  int            `json:"totalConversations"`
	PositiveFeedback    int            `json:"positiveFeedback"`
	NegativeFeedback    int            `json:"negativeFeedback"`
	AverageConfidence   float64        `json:"averageConfidence"`
	PendingImprovements int            `json:"pendingImprovements"`
	Topics              map[string]int `json:"topics"`
}

type improvementTask struct {
	ID                     string    `json:"id"`
	OriginalConversationID string    `json:"originalConversationId"`
	Question               string    `json:"question"`
	Answer                 string    `json:"answer"`
	Status                 string    `json:"status"`
	CreatedAt              time.Time `json:"createdAt"`
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the twin a question",
	Long: `Ask the twin a question.

Examples:
  twind ask "What languages do you code in?"
  twind ask --stream "Tell me about your last project"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		stream, _ := cmd.Flags().GetBool("stream")
		showSources, _ := cmd.Flags().GetBool("sources")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if stream {
			return askStream(cmd.Context(), client, stdout, question)
		}
		return ask(cmd.Context(), client, stdout, question, showSources)
	},
}

func init() {
	askCmd.Flags().Bool("stream", false, "print tokens as they are generated")
	askCmd.Flags().Bool("sources", false, "list the profile entries the answer used")
}

func ask(ctx context.Context, client *apiClient, w io.Writer, question string, showSources bool) error {
	var res askResult
	resp, err := client.do(ctx, http.MethodPost, "/v1/ask", map[string]string{"question": question})
	if err != nil {
		return err
	}
	// 503 still carries an ask body with success=false.
	if resp.StatusCode == http.StatusServiceUnavailable {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return fmt.Errorf("answer failed: %s", res.Error)
	}
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}

	fmt.Fprintln(w, res.Answer)
	if showSources {
		printSources(w, res.Sources)
	}
	if res.ConversationID != "" {
		fmt.Fprintln(w, colorize(colorDim, fmt.Sprintf("\nconversation %s (%d ms)", res.ConversationID, res.ProcessingTime)))
	}
	return nil
}

func askStream(ctx context.Context, client *apiClient, w io.Writer, question string) error {
	resp, err := client.do(ctx, http.MethodPost, "/v1/ask/stream", map[string]string{"question": question})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return decodeJSON(resp, nil)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var e streamEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("decoding stream event: %w", err)
		}
		switch e.Type {
		case "status":
			fmt.Fprintln(os.Stderr, colorize(colorDim, "… "+e.Message))
		case "token":
			fmt.Fprint(w, e.Content)
		case "done":
			fmt.Fprintln(w)
			fmt.Fprintln(w, colorize(colorDim, fmt.Sprintf("\nconversation %s (%s)", e.ConversationID, e.Path)))
			return nil
		case "error":
			fmt.Fprintln(w)
			return fmt.Errorf("stream failed: %s", e.Message)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return fmt.Errorf("stream ended without a result")
}

// --- job-fit ---

var jobFitCmd = &cobra.Command{
	Use:   "job-fit [description]",
	Short: "Analyze how well the profile fits a job description",
	Long: `Analyze how well the profile fits a job description.

Examples:
  twind job-fit "Senior Go engineer, Kubernetes, Postgres"
  twind job-fit --file ./job.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		jd := strings.Join(args, " ")
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading job description: %w", err)
			}
			jd = string(data)
		}
		if strings.TrimSpace(jd) == "" {
			return fmt.Errorf("a job description argument or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var res struct {
			Analysis string `json:"analysis"`
			Success  bool   `json:"success"`
		}
		if err := client.postJSON(cmd.Context(), "/v1/job-fit", map[string]string{"jobDescription": jd}, &res); err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.Analysis)
		if !res.Success {
			printWarning("analysis was produced without profile context")
		}
		return nil
	},
}

func init() {
	jobFitCmd.Flags().String("file", "", "read the job description from a file")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:       "feedback <conversation-id> <positive|negative>",
	Short:     "Rate an answer",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"positive", "negative"},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return sendFeedback(cmd.Context(), client, args[0], args[1])
	},
}

func sendFeedback(ctx context.Context, client *apiClient, id, feedback string) error {
	var res struct {
		Created  bool   `json:"created"`
		RecordID string `json:"recordId"`
	}
	body := map[string]string{"conversationId": id, "feedback": feedback}
	if err := client.postJSON(ctx, "/v1/feedback", body, &res); err != nil {
		return err
	}
	switch {
	case !res.Created:
		printSuccess("Feedback recorded (already applied earlier)")
	case feedback == "positive":
		printSuccess("Answer reinforced as %s", res.RecordID)
	default:
		printSuccess("Improvement task %s opened", res.RecordID)
	}
	return nil
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show learning metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var m learningMetrics
		if err := client.getJSON(cmd.Context(), "/v1/metrics", &m); err != nil {
			return err
		}
		printMetrics(stdout, m)
		return nil
	},
}

func printMetrics(w io.Writer, m learningMetrics) {
	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Conversations:"), m.TotalConversations)
	fmt.Fprintf(w, "%s %d positive, %d negative\n", colorize(colorBold, "Feedback:"), m.PositiveFeedback, m.NegativeFeedback)
	fmt.Fprintf(w, "%s %.2f\n", colorize(colorBold, "Average confidence:"), m.AverageConfidence)
	fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Pending improvements:"), m.PendingImprovements)
	if len(m.Topics) == 0 {
		return
	}

	topics := make([]string, 0, len(m.Topics))
	for t := range m.Topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if m.Topics[topics[i]] != m.Topics[topics[j]] {
			return m.Topics[topics[i]] > m.Topics[topics[j]]
		}
		return topics[i] < topics[j]
	})
	fmt.Fprintln(w, colorize(colorBold, "Topics:"))
	for _, t := range topics {
		fmt.Fprintf(w, "  %-18s %d\n", t, m.Topics[t])
	}
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-index the profile corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var res struct {
			Chunks         int   `json:"chunks"`
			Reinforcements int   `json:"reinforcements"`
			DurationMs     int64 `json:"durationMs"`
		}
		if err := client.postJSON(cmd.Context(), "/v1/reload", nil, &res); err != nil {
			return err
		}
		printSuccess("Indexed %d chunks and %d reinforcements in %d ms", res.Chunks, res.Reinforcements, res.DurationMs)
		return nil
	},
}

// --- improvements ---

var improvementsCmd = &cobra.Command{
	Use:   "improvements",
	Short: "Review answers that received negative feedback",
}

var improvementsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List improvement tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var tasks []improvementTask
		if err := client.getJSON(cmd.Context(), "/v1/improvements?status="+status, &tasks); err != nil {
			return err
		}
		printTasks(stdout, tasks)
		return nil
	},
}

func printTasks(w io.Writer, tasks []improvementTask) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No improvement tasks.")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "%s  %s  %-8s  %s\n",
			colorize(colorCyan, t.ID),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.Status,
			truncateLine(t.Question, 70),
		)
	}
}

var improvementsResolveCmd = &cobra.Command{
	Use:   "resolve <task-id>",
	Short: "Mark an improvement task resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var task improvementTask
		if err := client.postJSON(cmd.Context(), "/v1/improvements/"+args[0]+"/resolve", nil, &task); err != nil {
			return err
		}
		printSuccess("Resolved %s", task.ID)
		return nil
	},
}

func init() {
	improvementsListCmd.Flags().String("status", "pending", "pending, resolved or all")
	improvementsCmd.AddCommand(improvementsListCmd, improvementsResolveCmd)
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
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
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

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
