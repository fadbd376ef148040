package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/dtsm/internal/config"
	"github.com/nvandessel/dtsm/internal/constants"
	"github.com/nvandessel/dtsm/internal/density"
	"github.com/nvandessel/dtsm/internal/ratelimit"
	"github.com/nvandessel/dtsm/internal/simulation"
)

// registerTools registers all dtsm MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dtsm_simulate",
		Description: "Run a semi-Markov lattice simulation from a run spec and return the marginal density at each snapshot time",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dtsm_density",
		Description: "Return the marginal density table of a saved run",
	}, s.handleDensity)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dtsm_runs",
		Description: "List saved runs, newest first",
	}, s.handleRuns)
}

// handleSimulate implements the dtsm_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dtsm_simulate", start, retErr, sanitizeToolParams(map[string]interface{}{
			"spec":   args.Spec,
			"save":   args.Save,
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dtsm_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}
	if err := checkRenderFormat(args.Format); err != nil {
		return nil, SimulateOutput{}, err
	}
	if strings.TrimSpace(args.Spec) == "" {
		return nil, SimulateOutput{}, fmt.Errorf("spec is required")
	}

	spec, err := config.ParseRunSpec([]byte(args.Spec))
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	cfg, err := spec.ToConfig(s.app)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("invalid run spec: %w", err)
	}

	res, err := simulation.NewRunner(s.logger, nil).Run(ctx, cfg)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	table := density.Project(res)
	out := SimulateOutput{
		M:      res.Grid.M,
		N:      res.Grid.N,
		Tau:    res.Grid.Tau,
		Masses: res.Masses(),
		Steps:  res.Steps,
		Table:  table,
	}

	if out.Rendered, err = render(table, args.Format); err != nil {
		return nil, SimulateOutput{}, err
	}

	if args.Save {
		specJSON, err := spec.JSON()
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("encoding run spec: %w", err)
		}
		id, err := s.store.SaveRun(ctx, res.Record(spec.Name, specJSON))
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		out.RunID = id
		s.logger.Info("run saved", "id", id, "name", spec.Name)
	}

	return nil, out, nil
}

// handleDensity implements the dtsm_density tool.
func (s *Server) handleDensity(ctx context.Context, req *sdk.CallToolRequest, args DensityInput) (_ *sdk.CallToolResult, _ DensityOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dtsm_density", start, retErr, sanitizeToolParams(map[string]interface{}{
			"run_id": args.RunID,
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dtsm_density"); err != nil {
		return nil, DensityOutput{}, err
	}
	if err := checkRenderFormat(args.Format); err != nil {
		return nil, DensityOutput{}, err
	}
	if args.RunID == "" {
		return nil, DensityOutput{}, fmt.Errorf("run_id is required")
	}

	run, err := s.store.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, DensityOutput{}, err
	}
	res, err := simulation.FromRecord(run)
	if err != nil {
		return nil, DensityOutput{}, err
	}

	table := density.Project(res)
	rendered, err := render(table, args.Format)
	if err != nil {
		return nil, DensityOutput{}, err
	}

	return nil, DensityOutput{
		RunID:    run.ID,
		Name:     run.Name,
		Table:    table,
		Rendered: rendered,
	}, nil
}

// handleRuns implements the dtsm_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dtsm_runs", start, retErr, sanitizeToolParams(map[string]interface{}{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dtsm_runs"); err != nil {
		return nil, RunsOutput{}, err
	}
	if args.Limit < 0 {
		return nil, RunsOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}

	summaries, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	if args.Limit > 0 && len(summaries) > args.Limit {
		summaries = summaries[:args.Limit]
	}

	items := make([]RunListItem, 0, len(summaries))
	for _, sum := range summaries {
		items = append(items, RunListItem{
			ID:        sum.ID,
			Name:      sum.Name,
			CreatedAt: sum.CreatedAt,
			M:         sum.M,
			N:         sum.N,
			Times:     sum.Times,
		})
	}

	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

// checkRenderFormat accepts the textual table formats. Arrow output is
// binary and only offered by the CLI.
func checkRenderFormat(format string) error {
	switch format {
	case "", constants.FormatJSON, constants.FormatText, constants.FormatCSV:
		return nil
	default:
		return fmt.Errorf("invalid format %q (valid: text, csv, json)", format)
	}
}

// render returns the table in a textual format. JSON is already the
// structured output, so it renders to nothing.
func render(t *density.Table, format string) (string, error) {
	if format == "" || format == constants.FormatJSON {
		return "", nil
	}
	var buf bytes.Buffer
	if err := density.Write(&buf, t, format); err != nil {
		return "", err
	}
	return buf.String(), nil
}
