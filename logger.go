package codecache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for zap, logrus and slog live
// under log/. A nil Logger in Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// scoped stamps base fields on every record; per-call fields win on conflict.
type scoped struct {
	l    Logger
	base Fields
}

func (s scoped) Debug(msg string, f Fields) { s.l.Debug(msg, s.merge(f)) }
func (s scoped) Info(msg string, f Fields)  { s.l.Info(msg, s.merge(f)) }
func (s scoped) Warn(msg string, f Fields)  { s.l.Warn(msg, s.merge(f)) }
func (s scoped) Error(msg string, f Fields) { s.l.Error(msg, s.merge(f)) }

func (s scoped) merge(f Fields) Fields {
	out := make(Fields, len(s.base)+len(f))
	for k, v := range s.base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}
