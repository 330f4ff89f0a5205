// Package logx is a thin zerolog wrapper shared by all roebot services.
//
// It provides:
//   - a value-type Logger safe to copy and embed (zero value is a no-op),
//   - a Service that owns the sinks (console, file, Telegram admin chat)
//     and can swap them at runtime on config reload,
//   - slog-like Field helpers so call sites stay declarative.
package logx
