package mcptools

import (
	"context"
	"errors"
	"strings"

	"codearchitect/internal/generator"
	"codearchitect/internal/orchestrator"
	"codearchitect/internal/storage"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Service handles MCP tool calls. Store may be nil, in which case runs are
// not archived.
type Service struct {
	orch   *orchestrator.Orchestrator
	store  storage.RunStore
	logger *zap.Logger
}

func NewService(orch *orchestrator.Orchestrator, store storage.RunStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{orch: orch, store: store, logger: logger}
}

// PlanScript runs the planning phase only.
func (s *Service) PlanScript(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PlanScriptInput,
) (*mcp.CallToolResult, PlanScriptOutput, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, PlanScriptOutput{}, errors.New("prompt is required")
	}

	plan, err := s.orch.Plan(ctx, generator.Request{Prompt: input.Prompt, Language: input.Language})
	if err != nil {
		return nil, PlanScriptOutput{}, err
	}

	out := PlanScriptOutput{Sections: make([]SectionInfo, 0, plan.Len())}
	for _, sec := range plan.Sections {
		out.Sections = append(out.Sections, SectionInfo{
			Index:       sec.Index,
			Title:       sec.Title,
			Instruction: sec.Instruction,
		})
	}
	return nil, out, nil
}

// GenerateScript runs a full generation. A failed run is reported in the
// output rather than as a tool error so the run id stays visible.
func (s *Service) GenerateScript(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateScriptInput,
) (*mcp.CallToolResult, GenerateScriptOutput, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, GenerateScriptOutput{}, errors.New("prompt is required")
	}

	res, runErr := s.orch.Run(ctx, generator.Request{Prompt: input.Prompt, Language: input.Language})
	if res == nil {
		return nil, GenerateScriptOutput{}, runErr
	}
	if s.store != nil {
		if err := s.store.SaveRun(context.WithoutCancel(ctx), res); err != nil {
			s.logger.Error("failed to archive run", zap.String("run_id", res.ID), zap.Error(err))
		}
	}

	out := GenerateScriptOutput{
		RunID:    res.ID,
		Status:   res.State.String(),
		Script:   res.Script,
		Sections: []string{},
	}
	if res.Plan != nil {
		out.Sections = res.Plan.Titles()
	}
	if runErr != nil {
		out.Message = runErr.Error()
	}
	return nil, out, nil
}
