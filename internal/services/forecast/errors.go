package forecast

import "fmt"

// InsufficientDataError reports that a tier cannot train on the available
// history.
type InsufficientDataError struct {
	Tier string
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need %d points, have %d", e.Tier, e.Need, e.Have)
}

// ModelTrainingError wraps a failure inside a tier's fitting step.
type ModelTrainingError struct {
	Tier string
	Err  error
}

func (e *ModelTrainingError) Error() string {
	return fmt.Sprintf("train %s: %v", e.Tier, e.Err)
}

func (e *ModelTrainingError) Unwrap() error { return e.Err }
