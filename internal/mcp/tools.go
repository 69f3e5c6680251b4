package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/extraction"
	"github.com/cbc-interpretation-server/internal/feedback"
)

// ReadingParam is one raw reading supplied to interpret_cbc.
type ReadingParam struct {
	Parameter string  `json:"parameter" jsonschema:"parameter name or common alias, e.g. Hb or MCV"`
	Value     float64 `json:"value" jsonschema:"measured value"`
	Unit      string  `json:"unit" jsonschema:"unit as printed on the report"`
}

// InterpretCBCParams defines parameters for the interpret_cbc tool
type InterpretCBCParams struct {
	Readings []ReadingParam `json:"readings,omitempty" jsonschema:"structured readings; ignored when text is given"`
	Text     string         `json:"text,omitempty" jsonschema:"plain-text laboratory report to extract readings from"`
	Age      *int           `json:"age,omitempty" jsonschema:"patient age in years"`
	Sex      string         `json:"sex,omitempty" jsonschema:"male, female or unspecified"`
}

// InterpretCBCResult is the interpret_cbc payload.
type InterpretCBCResult struct {
	Fingerprint string         `json:"fingerprint"`
	Narrative   string         `json:"narrative,omitempty"`
	Report      *domain.Report `json:"report"`
}

// ListParams is the empty input of the listing tools.
type ListParams struct{}

// SubmitFeedbackParams defines parameters for the submit_feedback tool
type SubmitFeedbackParams struct {
	Fingerprint         string  `json:"fingerprint" jsonschema:"fingerprint returned by interpret_cbc"`
	Diagnosis           string  `json:"diagnosis" jsonschema:"differential candidate being judged"`
	SuggestedConfidence float64 `json:"suggested_confidence" jsonschema:"confidence the engine reported"`
	Verdict             string  `json:"verdict" jsonschema:"agree or disagree"`
	Notes               string  `json:"notes,omitempty"`
}

// ExportFeedbackParams defines parameters for the export_feedback tool
type ExportFeedbackParams struct {
	Filename string `json:"filename,omitempty" jsonschema:"file name inside the export directory"`
}

func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "interpret_cbc",
		Description: "Interpret a complete blood count and return the structured report, ranked differentials and a narrative summary",
	}, s.handleInterpretCBC)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_reference_ranges",
		Description: "List the reference intervals the engine classifies against",
	}, s.handleListReferenceRanges)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_rules",
		Description: "List the differential rule base",
	}, s.handleListRules)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record a reviewer verdict on a suggested differential",
	}, s.handleSubmitFeedback)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Export all reviewer feedback to a JSON file in the data directory",
	}, s.handleExportFeedback)

	s.logger.WithField("tool_count", 5).Info("Registered MCP tools")
}

func (s *LiteServer) handleInterpretCBC(ctx context.Context, req *mcp.CallToolRequest, params InterpretCBCParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "interpret_cbc").Info("Tool invoked")

	patient, err := patientContext(params.Age, params.Sex)
	if err != nil {
		return createErrorResult("Invalid patient context", err), nil, nil
	}

	var readings []domain.RawReading
	if params.Text != "" {
		readings, err = s.extractor.Extract(ctx, params.Text)
		if errors.Is(err, extraction.ErrNoReadings) {
			return createErrorResult("No CBC readings found in text", nil), nil, nil
		}
		if err != nil {
			return createErrorResult("Extraction failed", err), nil, nil
		}
	} else {
		if len(params.Readings) == 0 {
			return createErrorResult("Missing required parameter", errors.New("readings or text is required")), nil, nil
		}
		readings = make([]domain.RawReading, len(params.Readings))
		for i, r := range params.Readings {
			readings[i] = domain.RawReading{Parameter: domain.Parameter(r.Parameter), Value: r.Value, Unit: r.Unit}
		}
	}

	report := s.interpreter.Interpret(domain.InterpretationRequest{Readings: readings, Patient: patient})
	result := InterpretCBCResult{Fingerprint: report.Fingerprint(), Report: report}

	if s.narrator != nil && report.IsFinalized() {
		text, err := s.narrator.GenerateNarrative(ctx, report)
		if err != nil {
			s.logger.WithError(err).Warn("Narrative unavailable, returning structured report only")
		} else {
			result.Narrative = text
		}
	}

	out := jsonResult(result)
	out.IsError = !report.IsFinalized()
	return out, nil, nil
}

func (s *LiteServer) handleListReferenceRanges(ctx context.Context, req *mcp.CallToolRequest, _ ListParams) (*mcp.CallToolResult, any, error) {
	table := s.interpreter.Table()
	return jsonResult(map[string]any{
		"version":   table.Version(),
		"intervals": table.Intervals(),
	}), nil, nil
}

func (s *LiteServer) handleListRules(ctx context.Context, req *mcp.CallToolRequest, _ ListParams) (*mcp.CallToolResult, any, error) {
	rules := s.interpreter.Rules()
	return jsonResult(map[string]any{
		"version": rules.Version(),
		"rules":   rules.Rules(),
	}), nil, nil
}

func (s *LiteServer) handleSubmitFeedback(ctx context.Context, req *mcp.CallToolRequest, params SubmitFeedbackParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "submit_feedback").Info("Tool invoked")

	fb := &feedback.Feedback{
		Fingerprint:         params.Fingerprint,
		Diagnosis:           params.Diagnosis,
		SuggestedConfidence: params.SuggestedConfidence,
		Verdict:             feedback.Verdict(params.Verdict),
		Notes:               params.Notes,
	}
	if err := s.feedbackStore.Save(ctx, fb); err != nil {
		return createErrorResult("Failed to save feedback", err), nil, nil
	}
	return jsonResult(fb), nil, nil
}

func (s *LiteServer) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	name := params.Filename
	if name == "" {
		name = fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	if filepath.Base(name) != name {
		return createErrorResult("Invalid filename", errors.New("filename must not contain a path")), nil, nil
	}

	path := filepath.Join(s.config.ExportDir(), name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return createErrorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.feedbackStore.ExportJSON(ctx, file); err != nil {
		return createErrorResult("Failed to export feedback", err), nil, nil
	}

	s.logger.WithField("path", path).Info("Feedback exported")
	return jsonResult(map[string]any{"path": path}), nil, nil
}

func patientContext(age *int, sex string) (*domain.PatientContext, error) {
	if age == nil {
		if sex != "" {
			return nil, domain.NewValidationError("age", "age is required when sex is given", nil)
		}
		return nil, nil
	}
	if *age < 0 || *age > 130 {
		return nil, domain.NewValidationError("age", "age must be between 0 and 130", *age)
	}
	parsed, err := domain.ParseSex(sex)
	if err != nil {
		return nil, domain.NewValidationError("sex", err.Error(), sex)
	}
	return &domain.PatientContext{Age: *age, Sex: parsed}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
