// Package exitcodes defines the standard exit codes used by bench-driver.
package exitcodes

// Exit code constants used by bench-driver
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every attempted unit sub-invocation succeeds
// * SuiteFailure (1): Used when one or more unit sub-invocations fail
// * RuntimeErr (2): Used for runtime errors such as configuration problems,
//   an unresolvable runtime directory, panics or timeouts
const (
	Success      = 0 // All units pass
	SuiteFailure = 1 // Unit sub-invocation failures
	RuntimeErr   = 2 // Runtime or configuration errors
)
