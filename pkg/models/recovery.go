package models

// ErrorCategory is the classification of an unexpected runtime error.
type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryAPI        ErrorCategory = "api"
	CategoryFilesystem ErrorCategory = "filesystem"
	CategoryGit        ErrorCategory = "git"
	CategoryBuild      ErrorCategory = "build"
	CategoryParsing    ErrorCategory = "parsing"
	CategoryResource   ErrorCategory = "resource"
	CategoryUnknown    ErrorCategory = "unknown"
)

// Categories lists every category in classification priority order.
var Categories = []ErrorCategory{
	CategoryNetwork,
	CategoryAPI,
	CategoryFilesystem,
	CategoryGit,
	CategoryBuild,
	CategoryParsing,
	CategoryResource,
	CategoryUnknown,
}

// RecoveryAction is the response chosen for a classified error.
type RecoveryAction string

const (
	ActionRetry               RecoveryAction = "retry"
	ActionFallback            RecoveryAction = "fallback"
	ActionGracefulDegradation RecoveryAction = "graceful_degradation"
	ActionAbort               RecoveryAction = "abort"
)

// RecoveryOutcome describes how an orchestration error was handled.
type RecoveryOutcome struct {
	Handled     bool           `json:"handled" yaml:"handled"`
	Recoverable bool           `json:"recoverable" yaml:"recoverable"`
	Retry       bool           `json:"retry" yaml:"retry"`
	Fallback    any            `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Category    ErrorCategory  `json:"category" yaml:"category"`
	Action      RecoveryAction `json:"action" yaml:"action"`
	// Attempt is the retry counter for (operation, category) after this error.
	Attempt int `json:"attempt" yaml:"attempt"`
	// Message carries the originating error text; unrecoverable outcomes read
	// "cannot proceed with <operation>: <error>".
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}
