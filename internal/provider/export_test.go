package provider

// AudioTranscriber exposes the client interface so tests can inject mocks
// through WithClientFactory.
type AudioTranscriber = audioTranscriber
