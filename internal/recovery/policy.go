package recovery

import (
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// maxRetries is the number of retries allowed per (operation, category)
// before the terminal strategy applies.
var maxRetries = map[models.ErrorCategory]int{
	models.CategoryNetwork:    3,
	models.CategoryAPI:        2,
	models.CategoryFilesystem: 1,
	models.CategoryGit:        2,
	models.CategoryBuild:      1,
	models.CategoryParsing:    1,
	models.CategoryResource:   0,
	models.CategoryUnknown:    1,
}

// terminalActions apply once retries are exhausted.
var terminalActions = map[models.ErrorCategory]models.RecoveryAction{
	models.CategoryNetwork:    models.ActionFallback,
	models.CategoryAPI:        models.ActionGracefulDegradation,
	models.CategoryFilesystem: models.ActionFallback,
	models.CategoryGit:        models.ActionFallback,
	models.CategoryBuild:      models.ActionGracefulDegradation,
	models.CategoryParsing:    models.ActionFallback,
	models.CategoryResource:   models.ActionAbort,
	models.CategoryUnknown:    models.ActionGracefulDegradation,
}

// MaxRetries returns the retry bound for a category.
func MaxRetries(category models.ErrorCategory) int {
	if n, ok := maxRetries[category]; ok {
		return n
	}
	return maxRetries[models.CategoryUnknown]
}

// Decide returns retry while retryCount is below the category's bound and
// the category's terminal action afterwards.
func Decide(category models.ErrorCategory, retryCount int) models.RecoveryAction {
	if retryCount < MaxRetries(category) {
		return models.ActionRetry
	}
	if action, ok := terminalActions[category]; ok {
		return action
	}
	return terminalActions[models.CategoryUnknown]
}

type retryKey struct {
	operation string
	category  models.ErrorCategory
}

// RetryState counts errors per (operation, category). Counts only grow until
// Reset or ResetAll is called. A RetryState belongs to a single Engine and is
// not safe for concurrent use.
type RetryState struct {
	counts map[retryKey]int
}

// NewRetryState creates an empty RetryState.
func NewRetryState() *RetryState {
	return &RetryState{counts: make(map[retryKey]int)}
}

// Increment bumps the counter and returns the new value.
func (s *RetryState) Increment(operation string, category models.ErrorCategory) int {
	k := retryKey{operation, category}
	s.counts[k]++
	return s.counts[k]
}

// Count returns the current counter value.
func (s *RetryState) Count(operation string, category models.ErrorCategory) int {
	return s.counts[retryKey{operation, category}]
}

// Reset clears one counter.
func (s *RetryState) Reset(operation string, category models.ErrorCategory) {
	delete(s.counts, retryKey{operation, category})
}

// ResetAll clears every counter.
func (s *RetryState) ResetAll() {
	clear(s.counts)
}
