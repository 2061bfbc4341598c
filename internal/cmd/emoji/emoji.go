// Package emoji provides symbol constants for CLI output.
// These symbols create a consistent visual language across all command-line commands.
package emoji

const (
	// Success represents successful completion of an operation.
	// Used for: completed backfills, clean shutdowns.
	Success = "✓"

	// Error represents failures.
	Error = "✗"

	// Stop represents shutdowns or blocking conditions.
	Stop = "■"

	// Warning represents non-critical issues such as an empty event log.
	Warning = "!"

	// Rocket marks a server that is up and listening.
	Rocket = "🚀"

	// Record marks the longest streak.
	Record = "🏆"
)
