package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/synccore/internal/config"
)

// ValidationError is one rejected configuration field.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Config *config.Config    `json:"config,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a system configuration",
		Long: `Validate a .cue or .yaml system configuration against the schema.

Checks the table sizes, the priority range, the node numbering and the
peer table of the tcp transport, and prints the resolved configuration.

Exit codes:
  0 - configuration valid
  1 - configuration rejected
  2 - file missing or of an unknown format

Examples:
  synccore validate ./system.cue
  synccore validate ./two_nodes.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Loading %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			return outputValidateError(formatter, "E100", err.Error(), nil)
		}
		switch cfgErr.Code {
		case config.ErrCodeNotFound, config.ErrCodeFormat:
			return outputValidateError(formatter, cfgErr.Code, cfgErr.Message, nil)
		}
		return outputValidationErrors(formatter, []ValidationError{validationError(cfgErr)})
	}

	return outputValidateSuccess(formatter, cfg)
}

func validationError(e *config.Error) ValidationError {
	v := ValidationError{Code: e.Code, Message: e.Message}
	if e.Pos.IsValid() {
		v.File = e.Pos.Filename()
		v.Line = e.Pos.Line()
		v.Column = e.Pos.Column()
	}
	return v
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, cfg *config.Config) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Config: cfg})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Configuration valid\n", mark(true))
	fmt.Fprintf(w, "  node %d of %d, %s transport\n", cfg.Node, cfg.Nodes, cfg.Transport)
	fmt.Fprintf(w, "  tasks %d, semaphores %d, message queues %d, posix semaphores %d\n",
		cfg.MaximumTasks, cfg.MaximumSemaphores, cfg.MaximumMessageQueues, cfg.MaximumPOSIXSemaphores)
	fmt.Fprintf(w, "  priorities 1..%d, processors %d, %d ticks/s\n",
		cfg.MaximumPriority, cfg.Processors, cfg.TicksPerSecond)
	if cfg.Nodes > 1 {
		fmt.Fprintf(w, "  global objects %d, packets %d, mpci timeout %d ticks\n",
			cfg.MaximumGlobalObjects, cfg.MaximumPackets, cfg.MPCITimeout)
	}
	for _, n := range cfg.PeerNodes() {
		fmt.Fprintf(w, "  peer %d: %s\n", n, cfg.Peers[n])
	}
	return nil
}

// outputValidateError reports a configuration that could not be read.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports a rejected configuration.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", mark(false))
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", err.File, err.Line, err.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
