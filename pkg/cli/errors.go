package cli

import "fmt"

// Process exit codes used by all ganymede commands.
const (
	// ExitOK indicates the command succeeded (action approved where applicable).
	ExitOK = 0

	// ExitRejected indicates an action was rejected by policy validation.
	ExitRejected = 1

	// ExitHalted indicates the system is emergency halted.
	ExitHalted = 2

	// ExitIntegrity indicates a configuration or rule-set integrity error.
	ExitIntegrity = 3
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}
