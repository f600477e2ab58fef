package media

// Export internal functions and types for testing.
var (
	ParseDurationFromFFmpegOutput = parseDurationFromFFmpegOutput
	FormatFFmpegTime              = formatFFmpegTime
	EncodingArgs                  = encodingArgs
)

// Type aliases so external tests can implement unexported interfaces.
type (
	CommandRunner = commandRunner
	FileOpener    = fileOpener
)
