// -----------------------------------------------------------------------
// Audit Service Errors
// -----------------------------------------------------------------------

package audit

import "fmt"

// ValidationError indicates a malformed request (missing collection id,
// unknown job, bad batch size). Handlers map it to a 400-class response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// StateError indicates an operation that is not allowed in the job's
// current status, such as cancelling a completed job.
type StateError struct {
	JobID   string
	Status  string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s is %s: %s", e.JobID, e.Status, e.Message)
}
