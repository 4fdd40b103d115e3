package logging

// Tagged binds a Logger to a fixed tag so components can log with short
// calls. It is a value type; copies share the underlying Logger.
type Tagged struct {
	Logger Logger
	Tag    string
}

// WithTag returns a Tagged logger for tag.
func WithTag(l Logger, tag string) Tagged {
	return Tagged{Logger: l, Tag: tag}
}

func (t Tagged) Debug(msg string, args ...any) { t.Logger.Log(LevelDebug, t.Tag, msg, args...) }
func (t Tagged) Info(msg string, args ...any)  { t.Logger.Log(LevelInfo, t.Tag, msg, args...) }
func (t Tagged) Warn(msg string, args ...any)  { t.Logger.Log(LevelWarn, t.Tag, msg, args...) }
func (t Tagged) Error(msg string, args ...any) { t.Logger.Log(LevelError, t.Tag, msg, args...) }

// WithContext logs msg with a structured context map.
func (t Tagged) WithContext(level Level, msg string, fields map[string]any) {
	t.Logger.LogWithContext(level, t.Tag, msg, fields)
}
