package training

import "fmt"

// InsufficientDataError indicates a SKU has some history but fewer prepared
// daily records than the training floor. Sub-monthly data cannot support
// seasonal decomposition or a meaningful holdout split.
type InsufficientDataError struct {
	SKU      string
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("sku %s: insufficient data for training: need %d daily records, got %d",
		e.SKU, e.Required, e.Got)
}

// TrainingError wraps a failure inside the training pipeline with the SKU
// and the stage that failed.
type TrainingError struct {
	SKU   string
	Stage string
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("sku %s: training failed at %s: %v", e.SKU, e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }
