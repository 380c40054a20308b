package koi

import "fmt"

// Controller is the decision capability behind one koi. Activate must be a
// pure function of inputs and the controller's own weights.
type Controller interface {
	Activate(inputs []float64) ([]float64, error)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(inputs []float64) ([]float64, error)

func (f ControllerFunc) Activate(inputs []float64) ([]float64, error) {
	return f(inputs)
}

// ControllerError reports a failed decision call. It costs the koi its
// fitness for the trial, never the run.
type ControllerError struct {
	GenomeID string
	Err      error
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("controller for genome %s: %v", e.GenomeID, e.Err)
}

func (e *ControllerError) Unwrap() error {
	return e.Err
}
