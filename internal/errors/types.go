// Package errors defines the structured error type used across kreate.
//
// Every failure carries an ErrorType (the broad category) and a Code (the
// exact condition). Two errors compare equal under errors.Is when both
// match, so callers test against the exported sentinels:
//
//	if errors.Is(err, kerrors.ErrFileNotFound) { ... }
//
// Conditions the run can survive (unknown komponent kinds, branch-pinned
// repos) are flagged as warnings and are logged rather than returned.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeNotFound ErrorType = "notfound"
	ErrorTypeTemplate ErrorType = "template"
	ErrorTypePatch    ErrorType = "patch"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeKrypt    ErrorType = "krypt"
)

const (
	CodeMergeConflict        = "MERGE_CONFLICT"
	CodeMissingPath          = "MISSING_PATH"
	CodeUndefinedField       = "UNDEFINED_FIELD"
	CodeDuplicateKomponent   = "DUPLICATE_KOMPONENT"
	CodeUnknownKind          = "UNKNOWN_KIND"
	CodeMissingTemplate      = "MISSING_TEMPLATE"
	CodeUnknownTemplateClass = "UNKNOWN_TEMPLATE_CLASS"
	CodePatchTargetNotFound  = "PATCH_TARGET_NOT_FOUND"
	CodeRepoNotFound         = "REPO_NOT_FOUND"
	CodeFileNotFound         = "FILE_NOT_FOUND"
	CodeVersionMismatch      = "VERSION_MISMATCH"
	CodeInvalidOption        = "INVALID_OPTION"
	CodeRequirementFailed    = "REQUIREMENT_FAILED"
	CodeRenderFailed         = "RENDER_FAILED"
	CodeDownloadFailed       = "DOWNLOAD_FAILED"
	CodeDekryptFailed        = "DEKRYPT_FAILED"
)

// Sentinels for errors.Is comparisons.
var (
	ErrMergeConflict        = &KreateError{Type: ErrorTypeConfig, Code: CodeMergeConflict}
	ErrMissingPath          = &KreateError{Type: ErrorTypeConfig, Code: CodeMissingPath}
	ErrUndefinedField       = &KreateError{Type: ErrorTypeConfig, Code: CodeUndefinedField}
	ErrDuplicateKomponent   = &KreateError{Type: ErrorTypeConfig, Code: CodeDuplicateKomponent}
	ErrUnknownKind          = &KreateError{Type: ErrorTypeConfig, Code: CodeUnknownKind}
	ErrInvalidOption        = &KreateError{Type: ErrorTypeConfig, Code: CodeInvalidOption}
	ErrRequirementFailed    = &KreateError{Type: ErrorTypeConfig, Code: CodeRequirementFailed}
	ErrMissingTemplate      = &KreateError{Type: ErrorTypeTemplate, Code: CodeMissingTemplate}
	ErrUnknownTemplateClass = &KreateError{Type: ErrorTypeTemplate, Code: CodeUnknownTemplateClass}
	ErrRenderFailed         = &KreateError{Type: ErrorTypeTemplate, Code: CodeRenderFailed}
	ErrPatchTargetNotFound  = &KreateError{Type: ErrorTypePatch, Code: CodePatchTargetNotFound}
	ErrRepoNotFound         = &KreateError{Type: ErrorTypeNotFound, Code: CodeRepoNotFound}
	ErrFileNotFound         = &KreateError{Type: ErrorTypeNotFound, Code: CodeFileNotFound}
	ErrVersionMismatch      = &KreateError{Type: ErrorTypeConfig, Code: CodeVersionMismatch}
	ErrDownloadFailed       = &KreateError{Type: ErrorTypeNetwork, Code: CodeDownloadFailed}
	ErrDekryptFailed        = &KreateError{Type: ErrorTypeKrypt, Code: CodeDekryptFailed}
)

// KreateError is a structured error type with context.
type KreateError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Component string
	Path      string
	Warning   bool
}

// Error implements the error interface.
func (e *KreateError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "komponent:"+e.Component)
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *KreateError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *KreateError) Is(target error) bool {
	var t *KreateError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *KreateError) WithContext(key string, value interface{}) *KreateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds komponent context.
func (e *KreateError) WithComponent(id string) *KreateError {
	e.Component = id

	return e
}

// WithPath adds the dotted konfig path or file path the error refers to.
func (e *KreateError) WithPath(path string) *KreateError {
	e.Path = path

	return e
}

// WithCause sets the underlying error.
func (e *KreateError) WithCause(cause error) *KreateError {
	e.Cause = cause

	return e
}

// AsWarning marks the error as a condition the run survives.
func (e *KreateError) AsWarning() *KreateError {
	e.Warning = true

	return e
}

// Error creation functions

// NewMergeConflict reports two values of incompatible structural type at key.
func NewMergeConflict(key string, existing, incoming interface{}) *KreateError {
	return &KreateError{
		Type: ErrorTypeConfig,
		Code: CodeMergeConflict,
		Message: fmt.Sprintf("cannot merge %s into %s",
			describe(incoming), describe(existing)),
		Path: key,
		Context: map[string]interface{}{
			"existing": existing,
			"incoming": incoming,
		},
	}
}

// NewMissingPath reports a mandatory dotted path that does not resolve.
func NewMissingPath(path string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeConfig,
		Code:    CodeMissingPath,
		Message: "mandatory path not found",
		Path:    path,
	}
}

// NewUndefinedField reports a komponent field with no value and no default.
func NewUndefinedField(id, field string) *KreateError {
	return &KreateError{
		Type:      ErrorTypeConfig,
		Code:      CodeUndefinedField,
		Message:   fmt.Sprintf("field %q is not defined", field),
		Component: id,
	}
}

// NewDuplicateKomponent reports a second registration of the same id.
func NewDuplicateKomponent(id string) *KreateError {
	return &KreateError{
		Type:      ErrorTypeConfig,
		Code:      CodeDuplicateKomponent,
		Message:   "komponent already registered",
		Component: id,
	}
}

// NewUnknownKind reports a top-level konfig key that names no klass.
func NewUnknownKind(kind string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeConfig,
		Code:    CodeUnknownKind,
		Message: fmt.Sprintf("unknown komponent kind %q, skipping", kind),
		Warning: true,
	}
}

// NewMissingTemplate reports a komponent whose template could not be loaded.
func NewMissingTemplate(id string, cause error) *KreateError {
	return &KreateError{
		Type:      ErrorTypeTemplate,
		Code:      CodeMissingTemplate,
		Message:   "template not found",
		Component: id,
		Cause:     cause,
	}
}

// NewUnknownTemplateClass reports a klass declaration naming no known variant.
func NewUnknownTemplateClass(kind, variant string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeTemplate,
		Code:    CodeUnknownTemplateClass,
		Message: fmt.Sprintf("kind %q declares unknown variant %q", kind, variant),
	}
}

// NewRenderFailed wraps a template execution or output parse failure.
func NewRenderFailed(id string, cause error) *KreateError {
	return &KreateError{
		Type:      ErrorTypeTemplate,
		Code:      CodeRenderFailed,
		Message:   "rendering failed",
		Component: id,
		Cause:     cause,
	}
}

// NewPatchTargetNotFound reports a patch whose target was never registered.
func NewPatchTargetNotFound(id, target string) *KreateError {
	return &KreateError{
		Type:      ErrorTypePatch,
		Code:      CodePatchTargetNotFound,
		Message:   fmt.Sprintf("patch target %q not found", target),
		Component: id,
	}
}

// NewRepoNotFound reports a reference to an undefined repo.
func NewRepoNotFound(name string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeNotFound,
		Code:    CodeRepoNotFound,
		Message: fmt.Sprintf("repo %q not found", name),
	}
}

// NewFileNotFound reports a file absent from a repo.
func NewFileNotFound(repo, path string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeNotFound,
		Code:    CodeFileNotFound,
		Message: fmt.Sprintf("file not found in repo %q", repo),
		Path:    path,
	}
}

// NewVersionMismatch warns about a repo pinned to a branch instead of a tag.
func NewVersionMismatch(repo, version string) *KreateError {
	return &KreateError{
		Type:    ErrorTypeConfig,
		Code:    CodeVersionMismatch,
		Message: fmt.Sprintf("repo %q uses non-pinned version %q", repo, version),
		Warning: true,
	}
}

// NewInvalidOption reports an options entry that fails validation.
func NewInvalidOption(id, option, message string) *KreateError {
	return &KreateError{
		Type:      ErrorTypeConfig,
		Code:      CodeInvalidOption,
		Message:   fmt.Sprintf("option %q: %s", option, message),
		Component: id,
	}
}

// NewRequirementFailed reports a klass that needs a newer kreate.
func NewRequirementFailed(kind, required, actual string) *KreateError {
	return &KreateError{
		Type: ErrorTypeConfig,
		Code: CodeRequirementFailed,
		Message: fmt.Sprintf("kind %q requires kreate %s, running %s",
			kind, required, actual),
	}
}

// NewDownloadFailed wraps a failed repo download.
func NewDownloadFailed(repo, url string, cause error) *KreateError {
	return &KreateError{
		Type:    ErrorTypeNetwork,
		Code:    CodeDownloadFailed,
		Message: fmt.Sprintf("downloading repo %q failed", repo),
		Path:    url,
		Cause:   cause,
	}
}

// NewDekryptFailed wraps a decryption failure.
func NewDekryptFailed(path string, cause error) *KreateError {
	return &KreateError{
		Type:    ErrorTypeKrypt,
		Code:    CodeDekryptFailed,
		Message: "dekrypt failed",
		Path:    path,
		Cause:   cause,
	}
}

// Predicates

// IsNotFound checks if an error reports a missing repo or file.
func IsNotFound(err error) bool {
	var ke *KreateError
	if errors.As(err, &ke) {
		return ke.Type == ErrorTypeNotFound
	}

	return false
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	var ke *KreateError
	if errors.As(err, &ke) {
		return ke.Type == ErrorTypeConfig
	}

	return false
}

// IsWarning checks if an error describes a condition the run survives.
func IsWarning(err error) bool {
	var ke *KreateError
	if errors.As(err, &ke) {
		return ke.Warning
	}

	return false
}

func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "mapping"
	case []interface{}:
		return "sequence"
	default:
		return fmt.Sprintf("scalar %v", v)
	}
}
