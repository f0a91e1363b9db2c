package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

type lineFormat int

const (
	formatJSON lineFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// defaultKeyOrder puts the fields an operator scans first at the front of a line.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status", "rid",
	"update_id", "chat_id", "user_id", "handler", "cb_key", "outcome", "duration_ms",
	"from_state", "to_state", "category", "mailing_id",
	"method", "path", "http_code", "attempts",
	"messages", "kb", "count", "payload", "username",
	"mode", "listen", "db", "host", "port",
	"err", "err_code", "cause", "retryable",
}

type handlerOptions struct {
	level  slog.Leveler
	out    *lineWriter
	format lineFormat
	order  []string
}

// lineHandler renders records as single kv or JSON lines with a stable key order.
type lineHandler struct {
	opts   handlerOptions
	rank   map[string]int
	attrs  []slog.Attr
	prefix string
}

func newLineHandler(opts handlerOptions) *lineHandler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if len(opts.order) == 0 {
		opts.order = defaultKeyOrder
	}
	rank := make(map[string]int, len(opts.order))
	for i, k := range opts.order {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &lineHandler{opts: opts, rank: rank}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.opts.out == nil {
		return fmt.Errorf("logger: output not initialized")
	}
	fields := make(map[string]any, 16)
	fields["ts"] = r.Time.UTC().Format(tsLayout)
	fields["level"] = levelName(r.Level)

	put := func(a slog.Attr) bool {
		h.put(fields, h.prefix, a)
		return true
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(put)
	for _, a := range MetaFrom(ctx).attrs() {
		if _, set := fields[a.Key]; !set {
			put(a)
		}
	}

	if rid, ok := fields["rid"].(string); ok {
		fields["rid"] = CompactRID(rid)
	}
	if s, ok := fields["event"].(string); !ok || s == "" {
		fields["event"] = r.Message
		if r.Message == "" {
			fields["event"] = "unknown"
		}
	}
	if s, ok := fields["component"].(string); !ok || s == "" {
		fields["component"] = "app"
	}
	if s, ok := fields["status"].(string); ok {
		fields["status"] = strings.ToLower(s)
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" {
			delete(fields, k)
		}
	}

	var line []byte
	var err error
	if h.opts.format == formatKV {
		line = encodeKV(fields, h.keys(fields))
	} else if line, err = encodeJSON(fields, h.keys(fields)); err != nil {
		return err
	}
	return h.opts.out.write(append(line, '\n'))
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixed(h.prefix, a))
	}
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// keys orders fields by rank, then alphabetically.
func (h *lineHandler) keys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := h.rank[keys[i]]
		rj, jok := h.rank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// put flattens groups into dotted keys and stores a normalized value.
func (h *lineHandler) put(fields map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		p := joinKey(prefix, a.Key)
		for _, child := range a.Value.Group() {
			h.put(fields, p, child)
		}
		return
	}
	key := joinKey(prefix, a.Key)
	if key == "" {
		return
	}
	if d, ok := durationOf(a.Value); ok {
		fields[msKey(key)] = RoundMS(d).Milliseconds()
		return
	}
	if v, ok := plain(a.Value); ok {
		fields[key] = v
	}
}

func prefixed(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	a.Key = joinKey(prefix, a.Key)
	return a
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func durationOf(v slog.Value) (time.Duration, bool) {
	if v.Kind() == slog.KindDuration {
		return v.Duration(), true
	}
	if v.Kind() == slog.KindAny {
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

// msKey maps duration keys onto their millisecond field name.
func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func plain(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	case string:
		return strings.TrimSpace(x), true
	default:
		return fmt.Sprint(x), true
	}
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

func encodeJSON(fields map[string]any, keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		v, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeKV(fields map[string]any, keys []string) []byte {
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		s := fmt.Sprint(fields[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
	return buf.Bytes()
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
