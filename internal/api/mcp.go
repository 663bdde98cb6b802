package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/twind/internal/conversation"
	"github.com/kalambet/twind/internal/pipeline"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Answerer      Answerer
	Conversations Conversations
	Name          string // whose twin this is, for tool descriptions
	Version       string
}

// NewMCPServer creates an MCP server exposing the twin's tools and the
// learning metrics resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	name := deps.Name
	if name == "" {
		name = "the profile owner"
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := server.NewMCPServer(
		"twind",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("twind answers questions about "+name+"'s professional background in the first person."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query_digital_twin",
			mcp.WithDescription("Ask the digital twin about "+name+"'s background, skills, experience, projects or career goals. Answers are generated from the indexed profile."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("get_technical_skills",
			mcp.WithDescription("List technical skills: languages, frameworks, databases, cloud and tooling."),
		),
		mcpSection(deps, pipeline.SectionSkills, "Technical Skills"),
	)

	s.AddTool(
		mcp.NewTool("get_work_experience",
			mcp.WithDescription("Work history with roles, achievements and technologies."),
			mcp.WithString("company", mcp.Description("Optional company name to focus on")),
		),
		mcpSection(deps, pipeline.SectionExperience, "Work Experience"),
	)

	s.AddTool(
		mcp.NewTool("get_projects",
			mcp.WithDescription("Portfolio projects with descriptions, technologies and impact."),
		),
		mcpSection(deps, pipeline.SectionProjects, "Portfolio Projects"),
	)

	s.AddTool(
		mcp.NewTool("analyze_job_fit",
			mcp.WithDescription("Analyze how well the profile matches a job description."),
			mcp.WithString("job_description", mcp.Description("The job description to analyze"), mcp.Required()),
		),
		mcpJobFit(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Rate an earlier answer. Positive feedback reinforces it; negative feedback queues it for review."),
			mcp.WithString("conversation_id", mcp.Description("Conversation ID returned with the answer"), mcp.Required()),
			mcp.WithString("feedback", mcp.Description("positive or negative"), mcp.Required(), mcp.Enum("positive", "negative")),
		),
		mcpFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"twin://metrics",
			"Learning Metrics",
			mcp.WithResourceDescription("Conversation totals, feedback counts, average confidence and topic distribution"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMetrics(deps),
	)

	return s
}

func mcpQuery(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("Please provide a question to ask the digital twin."), nil
		}
		question = strings.TrimSpace(question)
		if err := validateText(question, MaxQuestionChars); err != nil {
			return mcpError(err.Error()), nil
		}

		res := deps.Answerer.Ask(ctx, question)
		if !res.Success {
			return mcpError(fmt.Sprintf("answering failed: %v", res.Err)), nil
		}
		return mcpText(fmt.Sprintf("%s\n\n(conversation id: %s)", res.Answer, res.ConversationID)), nil
	}
}

func mcpSection(deps MCPDeps, section pipeline.Section, heading string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		focus := req.GetString("company", "")

		sources, err := deps.Answerer.Lookup(ctx, section, focus)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString("**" + heading + ":**\n\n")
		if len(sources) == 0 {
			sb.WriteString("Nothing indexed for this section.")
			return mcpText(sb.String()), nil
		}
		for i, s := range sources {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			if section != pipeline.SectionSkills && s.Title != "" {
				sb.WriteString("**" + s.Title + "**\n")
			}
			sb.WriteString(s.Content)
		}
		return mcpText(sb.String()), nil
	}
}

func mcpJobFit(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jd, err := req.RequireString("job_description")
		if err != nil {
			return mcpError("Please provide a job description to analyze."), nil
		}
		jd = strings.TrimSpace(jd)
		if err := validateText(jd, MaxJobDescriptionChars); err != nil {
			return mcpError(err.Error()), nil
		}

		fit, err := deps.Answerer.AnalyzeJobFit(ctx, jd)
		if err != nil {
			return mcpError(fmt.Sprintf("job fit analysis failed: %v", err)), nil
		}
		return mcpText(fit.Analysis), nil
	}
}

func mcpFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		fb, err := req.RequireString("feedback")
		if err != nil {
			return mcpError("feedback is required"), nil
		}

		res, err := deps.Conversations.SubmitFeedback(ctx, id, conversation.Feedback(fb))
		switch {
		case errors.Is(err, conversation.ErrInvalidFeedback), errors.Is(err, conversation.ErrNotFound):
			return mcpError(err.Error()), nil
		case err != nil:
			return mcpError(fmt.Sprintf("recording feedback failed: %v", err)), nil
		}

		msg := fmt.Sprintf("Recorded %s feedback for %s.", res.Feedback, res.ConversationID)
		if !res.Created {
			msg += " It had already been applied."
		}
		return mcpText(msg), nil
	}
}

func mcpResourceMetrics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		m, err := deps.Conversations.LearningMetrics(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading learning metrics: %w", err)
		}
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encoding learning metrics: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
