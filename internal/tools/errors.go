package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call names a tool that is not
// in the catalogue.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.ToolName)
}
