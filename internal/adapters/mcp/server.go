package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

const (
	serverName    = "coactivo-intake"
	serverVersion = "1.0.0"
)

// SubmissionRecorder counts cases created through this surface.
type SubmissionRecorder interface {
	RecordCaseSubmitted(service, entrypoint string)
}

type Dependencies struct {
	Submitter ports.CaseSubmitter
	Reader    ports.CaseReader
	Remover   ports.CaseRemover
	Metrics   SubmissionRecorder
	Logger    *slog.Logger
}

// NewServer builds an MCP server exposing the case tools.
func NewServer(deps Dependencies) *mcp.Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	t := &tools{deps: deps}
	t.register(srv)
	return srv
}

// NewHandler serves the MCP server over streamable HTTP.
func NewHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

type tools struct {
	deps Dependencies
}

type endpoint func(ctx context.Context, args json.RawMessage) (any, error)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": description}
}

func (t *tools) register(srv *mcp.Server) {
	if t.deps.Submitter != nil {
		t.add(srv, &mcp.Tool{
			Name:        "case_submit",
			Description: "Create a case for an uploaded legal title and start processing it.",
			InputSchema: inputSchema(map[string]any{
				"owner_id":  stringProperty("Owner of the case"),
				"file_path": stringProperty("Blob path of the uploaded PDF or DOCX"),
			}, []string{"owner_id", "file_path"}),
		}, t.submit)
	}
	if t.deps.Reader != nil {
		t.add(srv, &mcp.Tool{
			Name:        "case_get",
			Description: "Fetch one case with its status, verdict and extracted details.",
			InputSchema: inputSchema(map[string]any{
				"case_id": stringProperty("Case identifier"),
			}, []string{"case_id"}),
		}, t.get)
		t.add(srv, &mcp.Tool{
			Name:        "case_list",
			Description: "List an owner's cases, newest first.",
			InputSchema: inputSchema(map[string]any{
				"owner_id": stringProperty("Owner of the cases"),
			}, []string{"owner_id"}),
		}, t.list)
	}
	if t.deps.Remover != nil {
		t.add(srv, &mcp.Tool{
			Name:        "case_delete",
			Description: "Delete an owner's case and its uploaded document.",
			InputSchema: inputSchema(map[string]any{
				"owner_id": stringProperty("Owner of the case"),
				"case_id":  stringProperty("Case identifier"),
			}, []string{"owner_id", "case_id"}),
		}, t.delete)
	}
}

func (t *tools) add(srv *mcp.Server, tool *mcp.Tool, fn endpoint) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := fn(ctx, req.Params.Arguments)
		if err != nil {
			if !domain.IsKind(err, domain.ErrInvalidInput) && !domain.IsKind(err, domain.ErrCaseNotFound) {
				t.deps.Logger.Error("mcp_tool_failed", "tool", tool.Name, "error", err)
			}
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "decode tool arguments", errors.New("arguments are required"))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode tool arguments", err)
	}
	return nil
}

type caseSummary struct {
	ID              string                 `json:"id"`
	OwnerID         string                 `json:"owner_id"`
	FilePath        string                 `json:"file_path"`
	State           string                 `json:"state"`
	Status          domain.PipelineStatus  `json:"status"`
	Verdict         *domain.TrafficLight   `json:"verdict,omitempty"`
	FailureStage    domain.FailureStage    `json:"failure_stage,omitempty"`
	Title           *string                `json:"title,omitempty"`
	Observations    string                 `json:"observations,omitempty"`
	Details         *domain.VerdictDetails `json:"details,omitempty"`
	VerdictFallback bool                   `json:"verdict_fallback"`
}

func summarize(rec domain.CaseRecord) caseSummary {
	return caseSummary{
		ID:              rec.ID,
		OwnerID:         rec.OwnerID,
		FilePath:        rec.FilePath,
		State:           rec.LegacyState(),
		Status:          rec.Status,
		Verdict:         rec.Verdict,
		FailureStage:    rec.FailureStage,
		Title:           rec.Title,
		Observations:    rec.Observations,
		Details:         rec.Details,
		VerdictFallback: rec.VerdictFallback,
	}
}

func (t *tools) submit(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		OwnerID  string `json:"owner_id"`
		FilePath string `json:"file_path"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	rec, err := t.deps.Submitter.Submit(ctx, args.OwnerID, args.FilePath)
	if err != nil {
		return nil, err
	}
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordCaseSubmitted("api", "mcp")
	}
	return summarize(*rec), nil
}

func (t *tools) get(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		CaseID string `json:"case_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	rec, err := t.deps.Reader.GetByID(ctx, args.CaseID)
	if err != nil {
		return nil, err
	}
	return summarize(*rec), nil
}

func (t *tools) list(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		OwnerID string `json:"owner_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	records, err := t.deps.Reader.ListByOwner(ctx, args.OwnerID)
	if err != nil {
		return nil, err
	}
	out := make([]caseSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarize(rec))
	}
	return map[string]any{"cases": out}, nil
}

func (t *tools) delete(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		OwnerID string `json:"owner_id"`
		CaseID  string `json:"case_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := t.deps.Remover.Delete(ctx, args.OwnerID, args.CaseID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": args.CaseID}, nil
}
