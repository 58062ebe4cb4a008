package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/engine"
)

// Exit codes for marcbridge commands.
const (
	ExitSuccess      = 0 // Everything converted, every check held
	ExitFailure      = 1 // Files that did not convert, failed scenarios, replay mismatch
	ExitCommandError = 2 // Invalid paths, unknown model, bad flags, unreadable input
)

// Error codes carried by json error responses.
const (
	// Rule-set loading
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002" // rules directory unreadable
	ErrCodeNoFiles     = "E003" // no CUE files in the rules directory
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeWriteFailed = "E007" // output file not written
	ErrCodeCompile     = "E008" // rule set does not compile
	ErrCodeRegistry    = "E009" // rule sets compile but do not build a registry

	// Conversion
	ErrCodeUnknownModel     = "E020"
	ErrCodeInvalidDirection = "E021"
	ErrCodeInvalidRecord    = "E022"
	ErrCodeDecode           = "E023" // input file unreadable in its format

	ErrCodeStore = "E030" // audit database

	// Check failures
	ErrCodeDeterminism = "E_DETERMINISM"
	ErrCodeTestFailed  = "E_TEST_FAILED"
)

// conversionErrorCode maps a dispatcher error onto its error code.
func conversionErrorCode(err error) string {
	switch {
	case engine.IsUnknownModel(err):
		return ErrCodeUnknownModel
	case engine.IsInvalidDirection(err):
		return ErrCodeInvalidDirection
	case engine.IsInvalidRecord(err):
		return ErrCodeInvalidRecord
	default:
		return ErrCodeGeneric
	}
}

// ExitError carries the status a command wants main to exit with.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error
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

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit status for err: ExitSuccess for nil, the
// carried code for an ExitError anywhere in the chain, ExitFailure
// otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a json envelope.
// Records, warnings and verbose progress never share the json stream:
// they go to ErrWriter.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

// CLIResponse is the json envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // one of the ErrCode constants
	Message string `json:"message"`
	Details any    `json:"details,omitempty"` // replay or scenario report
}

// Success writes a result.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes an error response. Text mode prints details only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports a command error in json mode. In text mode the returned
// ExitError is the report, so nothing is written.
func (f *OutputFormatter) Fail(code, message string) error {
	if !f.json() {
		return nil
	}
	return f.Error(code, message, nil)
}

// Warnings lists conversion warnings, one per line. Warnings never fail a
// command.
func (f *OutputFormatter) Warnings(ws diag.Warnings) {
	w := f.errWriter()
	for _, warning := range ws {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// VerboseLog writes a progress line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) json() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
