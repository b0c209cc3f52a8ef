package gemini

// AnswerCache stores model answers keyed by model and prompt.
type AnswerCache interface {
	APICall(name string, payload []byte) ([]byte, bool)
	SetAPICall(name string, payload, data []byte) error
}

// Logger is the subset of *slog.Logger the client writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}
