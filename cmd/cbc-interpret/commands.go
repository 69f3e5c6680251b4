package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbc-interpretation-server/internal/config"
	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/extraction"
	"github.com/cbc-interpretation-server/internal/logging"
	"github.com/cbc-interpretation-server/internal/service"
	"github.com/cbc-interpretation-server/internal/setup"
)

// errReportFailed makes the process exit non-zero after the failed report is printed.
var errReportFailed = errors.New("interpretation did not finalize")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "cbc-interpret",
		Short:        "Interpret complete blood count results",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(interpretCmd())
	rootCmd.AddCommand(rangesCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(setupCmd())
	return rootCmd
}

func newInterpreter() (*service.Interpreter, error) {
	cfg := config.LoadLiteConfig()
	logCfg := cfg.Logging()
	if cfg.LogLevel == "info" {
		// keep the terminal quiet unless asked otherwise
		logCfg.Level = "warn"
	}
	logger, _, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	return service.NewInterpreterFromConfig(logger, cfg.Interpretation())
}

func interpretCmd() *cobra.Command {
	var (
		inputFile string
		textFile  string
		age       int
		sex       string
	)

	cmd := &cobra.Command{
		Use:   "interpret",
		Short: "Interpret readings from a JSON request or a plain-text report",
		Example: `  cbc-interpret interpret --input readings.json
  cbc-interpret interpret --text report.txt --age 42 --sex female`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (inputFile == "") == (textFile == "") {
				return errors.New("exactly one of --input or --text is required")
			}

			var req domain.InterpretationRequest
			var err error
			if inputFile != "" {
				req, err = readRequest(inputFile)
			} else {
				req, err = readText(cmd, textFile)
			}
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("age") {
				parsed, err := domain.ParseSex(sex)
				if err != nil {
					return err
				}
				req.Patient = &domain.PatientContext{Age: age, Sex: parsed}
			} else if cmd.Flags().Changed("sex") {
				return errors.New("--sex requires --age")
			}
			if req.Patient != nil && (req.Patient.Age < 0 || req.Patient.Age > 130) {
				return fmt.Errorf("age must be between 0 and 130, got %d", req.Patient.Age)
			}

			interpreter, err := newInterpreter()
			if err != nil {
				return err
			}
			report := interpreter.Interpret(req)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.IsFinalized() {
				return errReportFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputFile, "input", "", "JSON file with {readings, patient}")
	cmd.Flags().StringVar(&textFile, "text", "", "plain-text laboratory report")
	cmd.Flags().IntVar(&age, "age", 0, "patient age in years")
	cmd.Flags().StringVar(&sex, "sex", "", "patient sex: male, female or unspecified")
	return cmd
}

func rangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Print the reference intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			interpreter, err := newInterpreter()
			if err != nil {
				return err
			}
			table := interpreter.Table()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"version":   table.Version(),
				"intervals": table.Intervals(),
			})
		},
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the differential rule base",
		RunE: func(cmd *cobra.Command, args []string) error {
			interpreter, err := newInterpreter()
			if err != nil {
				return err
			}
			rules := interpreter.Rules()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"version": rules.Version(),
				"rules":   rules.Rules(),
			})
		},
	}
}

func setupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP stdio server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&configPath, "client-config", "", "client config file (default: platform location)")

	var opts setup.Options
	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry in the client config",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = configPath
			written, err := setup.Register(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerKey, written)
			return nil
		},
	}
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to mcp-server-lite (default: search PATH)")
	register.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed as CBC_DATA_DIR")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the registration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(configPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}

// requestFile is the on-disk request shape. Age is a pointer so a patient without one is
// rejected instead of falling into the infant band.
type requestFile struct {
	Readings []domain.RawReading `json:"readings"`
	Patient  *struct {
		Age *int   `json:"age"`
		Sex string `json:"sex"`
	} `json:"patient"`
}

func readRequest(path string) (domain.InterpretationRequest, error) {
	var req domain.InterpretationRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read input: %w", err)
	}
	var in requestFile
	if err := json.Unmarshal(data, &in); err != nil {
		return req, fmt.Errorf("failed to decode input: %w", err)
	}
	req.Readings = in.Readings
	if in.Patient == nil {
		return req, nil
	}
	if in.Patient.Age == nil {
		return req, domain.NewValidationError("patient.age", "age is required when a patient context is given", nil)
	}
	if *in.Patient.Age < 0 || *in.Patient.Age > 130 {
		return req, domain.NewValidationError("patient.age", "age must be between 0 and 130", *in.Patient.Age)
	}
	sex, err := domain.ParseSex(in.Patient.Sex)
	if err != nil {
		return req, err
	}
	req.Patient = &domain.PatientContext{Age: *in.Patient.Age, Sex: sex}
	return req, nil
}

func readText(cmd *cobra.Command, path string) (domain.InterpretationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.InterpretationRequest{}, fmt.Errorf("failed to read report: %w", err)
	}
	readings, err := extraction.NewTextExtractor().Extract(cmd.Context(), string(data))
	if err != nil {
		return domain.InterpretationRequest{}, err
	}
	return domain.InterpretationRequest{Readings: readings}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
