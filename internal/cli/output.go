package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/config"
	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/store"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the subject failed its check, or a history was not explained
	ExitCommandError = 2 // the command could not do its job
)

// Codes of the JSON error envelope. Config file errors keep the E2xx codes
// of the config package.
const (
	ErrCodeGeneric        = "E001"
	ErrCodeUnknownSubject = "E101"
	ErrCodeInvalidOptions = "E102"
	ErrCodeCheckNotFound  = "E301"
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// ErrCode overrides the envelope code derived from Err.
	ErrCode string
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WithCode sets the envelope code of e.
func (e *ExitError) WithCode(code string) *ExitError {
	e.ErrCode = code
	return e
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err. Errors raised outside
// the commands, such as flag parsing errors, are command errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// errorCode picks the envelope code of err.
func errorCode(err error) string {
	var (
		le      *config.LoadError
		exitErr *ExitError
		ce      *harness.ConfigError
	)
	switch {
	case errors.As(err, &le):
		return le.Code
	case errors.As(err, &exitErr) && exitErr.ErrCode != "":
		return exitErr.ErrCode
	case errors.Is(err, demo.ErrUnknownSubject):
		return ErrCodeUnknownSubject
	case errors.As(err, &ce):
		return ErrCodeInvalidOptions
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeCheckNotFound
	}
	return ErrCodeGeneric
}

// errorDetails returns structured context for the envelope, if err has any.
func errorDetails(err error) any {
	var le *config.LoadError
	if errors.As(err, &le) && le.Pos.IsValid() {
		return map[string]any{
			"file":   le.Pos.Filename(),
			"line":   le.Pos.Line(),
			"column": le.Pos.Column(),
		}
	}
	var ce *harness.ConfigError
	if errors.As(err, &ce) {
		return map[string]string{"kind": string(ce.Code)}
	}
	return nil
}

// OutputFormatter writes command output as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // ok, failed or error
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError describes a command error in the envelope.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data with status ok.
func (f *OutputFormatter) Success(data any) error {
	return f.Result("ok", "", data)
}

// Result writes data with an explicit status, such as a failed check. Text
// output prints data as is.
func (f *OutputFormatter) Result(status, runID string, data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: status, Data: data, RunID: runID})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a command error. JSON goes to Writer so that the envelope
// replaces the command's payload; text goes to the diagnostic stream.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose output is on. It never
// writes to Writer when ErrWriter is set, so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostic stream.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
