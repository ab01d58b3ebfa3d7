package logging

import (
	"context"
	"log/slog"
	"strings"
)

// ///////////////////////////////////////////////
// slog Bridge
// ///////////////////////////////////////////////

// Handler adapts [log/slog] records into Gate emissions so packages can log
// structurally while the Gate stays the single filtering point. Attributes
// are appended to the message in the `| key=value, key2=value2` form.
type Handler struct {
	// gate is the destination for every record.
	gate *Gate
	// domain labels records from this handler in the capture file.
	domain string
	// attrs holds pre-applied attributes added via [Handler.WithAttrs].
	attrs []slog.Attr
	// group is the dot-separated attribute key prefix set via [Handler.WithGroup].
	group string
}

// NewHandler creates a Handler emitting into gate under the given domain.
func NewHandler(gate *Gate, domain string) *Handler {
	return &Handler{gate: gate, domain: domain}
}

// severityFor maps slog levels onto Gate severities. Levels above
// [slog.LevelError] are treated as critical.
func severityFor(level slog.Level) Severity {
	switch {
	case level < slog.LevelInfo:
		return SeverityDebug
	case level < slog.LevelWarn:
		return SeverityInfo
	case level < slog.LevelError:
		return SeverityWarning
	case level == slog.LevelError:
		return SeverityError
	default:
		return SeverityCritical
	}
}

// Enabled reports whether the gate would produce any output for level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.gate.enabled(severityFor(level))
}

// Handle formats the record and its attributes and emits it through the gate.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	allAttrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	allAttrs = append(allAttrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		allAttrs = append(allAttrs, a)
		return true
	})

	if len(allAttrs) > 0 {
		b.WriteString(" | ")
		for i, a := range allAttrs {
			if i > 0 {
				b.WriteString(", ")
			}
			if h.group != "" {
				b.WriteString(h.group)
				b.WriteString(".")
			}
			b.WriteString(a.Key)
			b.WriteString("=")
			b.WriteString(a.Value.String())
		}
	}

	h.gate.Emit(h.domain, severityFor(r.Level), b.String())
	return nil
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &Handler{gate: h.gate, domain: h.domain, attrs: newAttrs, group: h.group}
}

// WithGroup returns a new Handler with the given group name. Attribute keys
// logged through the returned handler are prefixed "group.key".
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &Handler{gate: h.gate, domain: h.domain, attrs: h.attrs, group: newGroup}
}
