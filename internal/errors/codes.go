package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents internal error codes for fabric operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeInvalidLoadSpec ErrorCode = 1001
	ErrCodeUnknownFeature  ErrorCode = 1002
	ErrCodeUnknownDataKey  ErrorCode = 1003
	ErrCodeNotLoaded       ErrorCode = 1004
	ErrCodeUnknownTask     ErrorCode = 1005
	ErrCodeUnknownXMLID    ErrorCode = 1006

	// Source and storage errors
	ErrCodeInternal       ErrorCode = 2000
	ErrCodeSourceMissing  ErrorCode = 2001
	ErrCodeMalformedGraF  ErrorCode = 2002
	ErrCodeNotCompiled    ErrorCode = 2003
	ErrCodeCorruptedData  ErrorCode = 2004
	ErrCodeDiskFull       ErrorCode = 2005
	ErrCodeCompileFailed  ErrorCode = 2006
	ErrCodePrepareFailed  ErrorCode = 2007
	ErrCodeChecksumFailed ErrorCode = 2008
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:              "ok",
	ErrCodeInvalidArgument: "invalid_argument",
	ErrCodeInvalidLoadSpec: "invalid_load_spec",
	ErrCodeUnknownFeature:  "unknown_feature",
	ErrCodeUnknownDataKey:  "unknown_data_key",
	ErrCodeNotLoaded:       "not_loaded",
	ErrCodeUnknownTask:     "unknown_task",
	ErrCodeUnknownXMLID:    "unknown_xml_id",
	ErrCodeInternal:        "internal",
	ErrCodeSourceMissing:   "source_missing",
	ErrCodeMalformedGraF:   "malformed_graf",
	ErrCodeNotCompiled:     "not_compiled",
	ErrCodeCorruptedData:   "corrupted_data",
	ErrCodeDiskFull:        "disk_full",
	ErrCodeCompileFailed:   "compile_failed",
	ErrCodePrepareFailed:   "prepare_failed",
	ErrCodeChecksumFailed:  "checksum_failed",
}

// String returns the snake_case name of the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// FabricError represents a structured error with code and context
type FabricError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *FabricError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *FabricError) Unwrap() error {
	return e.Cause
}

// NewFabricError creates a new FabricError
func NewFabricError(code ErrorCode, message string, cause error) *FabricError {
	return &FabricError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *FabricError) WithDetail(key string, value interface{}) *FabricError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *FabricError {
	return NewFabricError(ErrCodeInvalidArgument, message, cause)
}

// InvalidLoadSpec bundles every problem found in a set of load instructions.
func InvalidLoadSpec(problems []string) *FabricError {
	return NewFabricError(ErrCodeInvalidLoadSpec,
		fmt.Sprintf("your load instructions have the following errors:\n%s", strings.Join(problems, "\n")), nil).
		WithDetail("problems", problems)
}

func UnknownFeature(kind, spec string) *FabricError {
	return NewFabricError(ErrCodeUnknownFeature, fmt.Sprintf("unknown %s feature: %s", kind, spec), nil).
		WithDetail("kind", kind).
		WithDetail("feature", spec)
}

func UnknownDataKey(dkey string) *FabricError {
	return NewFabricError(ErrCodeUnknownDataKey, fmt.Sprintf("unknown data item key: %s", dkey), nil).
		WithDetail("dkey", dkey)
}

func NotLoaded(dkey, what string) *FabricError {
	return NewFabricError(ErrCodeNotLoaded, fmt.Sprintf("%s not loaded (%s)", what, dkey), nil).
		WithDetail("dkey", dkey)
}

func UnknownTask(name string) *FabricError {
	return NewFabricError(ErrCodeUnknownTask, fmt.Sprintf("unknown task: %s", name), nil).
		WithDetail("task", name)
}

func UnknownXMLID(file, xmlID string) *FabricError {
	return NewFabricError(ErrCodeUnknownXMLID, fmt.Sprintf("%s: reference to unknown xml id '%s'", file, xmlID), nil).
		WithDetail("file", file).
		WithDetail("xml_id", xmlID)
}

func InternalError(message string, cause error) *FabricError {
	return NewFabricError(ErrCodeInternal, message, cause)
}

func SourceMissing(path string, cause error) *FabricError {
	return NewFabricError(ErrCodeSourceMissing, fmt.Sprintf("LAF source file missing: %s", path), cause).
		WithDetail("path", path)
}

func MalformedGraF(file, message string, cause error) *FabricError {
	return NewFabricError(ErrCodeMalformedGraF, fmt.Sprintf("%s: %s", file, message), cause).
		WithDetail("file", file)
}

func NotCompiled(source, dir string) *FabricError {
	return NewFabricError(ErrCodeNotCompiled, fmt.Sprintf("source %s has not been compiled in %s", source, dir), nil).
		WithDetail("source", source).
		WithDetail("dir", dir)
}

func CorruptedData(message string, cause error) *FabricError {
	return NewFabricError(ErrCodeCorruptedData, message, cause)
}

func ChecksumFailed(file string, expected, actual uint32) *FabricError {
	return NewFabricError(ErrCodeChecksumFailed,
		fmt.Sprintf("checksum validation failed for %s: expected %d, got %d", file, expected, actual), nil).
		WithDetail("file", file).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func DiskFull(usagePercent float64, availableBytes uint64) *FabricError {
	return NewFabricError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func CompileFailed(source string, cause error) *FabricError {
	return NewFabricError(ErrCodeCompileFailed, fmt.Sprintf("compiling %s failed", source), cause).
		WithDetail("source", source)
}

func PrepareFailed(preparer string, cause error) *FabricError {
	return NewFabricError(ErrCodePrepareFailed, fmt.Sprintf("preparer %s failed", preparer), cause).
		WithDetail("preparer", preparer)
}

// IsFabricError checks if an error is a FabricError
func IsFabricError(err error) bool {
	_, ok := asFabricError(err)
	return ok
}

// GetCode extracts the error code from an error, looking through wrapped errors
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	if fe, ok := asFabricError(err); ok {
		return fe.Code
	}
	return ErrCodeInternal
}

func asFabricError(err error) (*FabricError, bool) {
	for err != nil {
		if fe, ok := err.(*FabricError); ok {
			return fe, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
