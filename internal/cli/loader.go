package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dataspace/internal/compiler"
	"github.com/roach88/dataspace/internal/rules"
)

// LoadError represents an error that occurred while loading a program.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadProgram compiles the rule program at path, which may be a .cue file
// or a directory of them. Every failure is a *LoadError.
func LoadProgram(path string) (*rules.Program, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("program not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing program: %v", err)}
	}

	if info.IsDir() {
		files, err := compiler.FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	prog, err := compiler.Load(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return prog, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
// Program validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Compile errors
	ErrCodeInvalidActor    = "E010" // Malformed actor or program structure
	ErrCodeInvalidTrigger  = "E011" // Malformed reaction trigger or pattern
	ErrCodeInvalidTemplate = "E012" // Malformed field, assertion or effect template
	ErrCodeInvalidValue    = "E013" // Value outside the IR (e.g. float)
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	head, _, _ := strings.Cut(field, ".")
	switch head {
	case "cue":
		return ErrCodeBuildFailed
	case "actors":
		return ErrCodeInvalidActor
	case "on":
		return ErrCodeInvalidTrigger
	case "fields", "assert", "send", "retract", "set", "stop", "stop_when", "nested":
		return ErrCodeInvalidTemplate
	case "value":
		return ErrCodeInvalidValue
	default:
		return ErrCodeGeneric
	}
}
