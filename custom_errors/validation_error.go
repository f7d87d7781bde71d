package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every problem found in a configuration or a process
// request so that callers see all of them at once instead of fixing one per run.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err == nil {
		return
	}
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) Addf(format string, args ...any) {
	c.Add(fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// ErrOrNil returns the receiver only when something was collected.
func (c *ValidationError) ErrOrNil() error {
	if !c.HasError() {
		return nil
	}
	return c
}

func (c *ValidationError) Unwrap() []error {
	return c.Errors
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("validation failed: %v", errors.Join(c.Errors...))
}
