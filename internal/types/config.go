package types

type RunMode string

const (
	// ModeLocal is the mode for running the engine embedded in local tooling
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running behind the API server
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
