package contract

// Logger: 引擎日志出口。五个级别方法相互独立、均可为空；
// 为空时对应调用为 no-op（未注入 Logger 时零开销）。
// kv 为交替的键值对。
type Logger struct {
	Trace func(msg string, kv ...any)
	Debug func(msg string, kv ...any)
	Info  func(msg string, kv ...any)
	Warn  func(msg string, kv ...any)
	Error func(msg string, kv ...any)
}

// Tracef 输出 trace 事件。
func (l *Logger) Tracef(msg string, kv ...any) {
	if l != nil && l.Trace != nil {
		l.Trace(msg, kv...)
	}
}

// Debugf 输出 debug 事件。
func (l *Logger) Debugf(msg string, kv ...any) {
	if l != nil && l.Debug != nil {
		l.Debug(msg, kv...)
	}
}

// Infof 输出 info 事件。
func (l *Logger) Infof(msg string, kv ...any) {
	if l != nil && l.Info != nil {
		l.Info(msg, kv...)
	}
}

// Warnf 输出 warn 事件。
func (l *Logger) Warnf(msg string, kv ...any) {
	if l != nil && l.Warn != nil {
		l.Warn(msg, kv...)
	}
}

// Errorf 输出 error 事件。
func (l *Logger) Errorf(msg string, kv ...any) {
	if l != nil && l.Error != nil {
		l.Error(msg, kv...)
	}
}

// TraceEnabled 报告 trace 是否有出口；用于跳过昂贵的参数构造。
func (l *Logger) TraceEnabled() bool { return l != nil && l.Trace != nil }
