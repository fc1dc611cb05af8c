package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiDim     = "\x1b[2m"
	ansiBright  = "\x1b[1m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"

	defaultLogWidth = 100
	minLogWidth     = 40
	continuation    = "    "
)

// prettyHandler renders one human-readable line per record, wrapped to the terminal width.
// Used for local development (CHITCHAT_LOG_FORMAT=pretty).
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	segs := []string{
		"ts=" + applyDim(ts.Format("15:04:05.000"), h.color),
		"lvl=" + levelTag(r.Level, h.color),
		"msg=" + applyBold(r.Message, h.color),
	}

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			segs = append(segs, "src="+applyDim(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), h.color))
		}
	}

	for _, a := range h.attrs {
		segs = h.appendAttr(segs, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		segs = h.appendAttr(segs, a, "")
		return true
	})

	out := strings.Join(wrapSegments(segs, " ", h.terminalWidth(), continuation), "\n") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, out)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(segs []string, a slog.Attr, parent string) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return segs
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return segs
	}

	fullKey := key
	if parent != "" {
		fullKey = parent + "." + key
	}
	if len(h.groups) > 0 && parent == "" {
		fullKey = strings.Join(h.groups, ".") + "." + fullKey
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			segs = h.appendAttr(segs, ga, fullKey)
		}
		return segs
	}

	return append(segs, remapPrettyKey(fullKey)+"="+h.prettyValue(fullKey, a.Value))
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch strings.TrimSpace(key) {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return colorize(strings.TrimSpace(v.String()), ansiCyan, h.color)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result", "outcome":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	}

	return quoteIfNeeded(valueToString(v))
}

// terminalWidth resolves the wrap width from CHITCHAT_LOG_WIDTH, then COLUMNS.
// Values narrower than minLogWidth are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"CHITCHAT_LOG_WIDTH", "COLUMNS"} {
		n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
		if err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return colorize("[ERROR]", ansiRed, color)
	case level >= slog.LevelWarn:
		return colorize("[WARN]", ansiYellow, color)
	case level < slog.LevelInfo:
		return colorize("[DEBUG]", ansiMagenta, color)
	default:
		return colorize("[INFO]", ansiBlue, color)
	}
}

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET":
		return colorize(m, ansiGreen, color)
	case "POST":
		return colorize(m, ansiBlue, color)
	case "DELETE":
		return colorize(m, ansiRed, color)
	default:
		return colorize(m, ansiYellow, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return colorize(strconv.Itoa(code), statusColor(code), color)
}

func colorizeStatusClass(class string, color bool) string {
	switch class {
	case "2xx":
		return colorize(class, ansiGreen, color)
	case "3xx":
		return colorize(class, ansiCyan, color)
	case "4xx":
		return colorize(class, ansiYellow, color)
	case "5xx":
		return colorize(class, ansiRed, color)
	default:
		return class
	}
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return colorize(s, ansiRed, color)
	case ms >= 250:
		return colorize(s, ansiYellow, color)
	default:
		return colorize(s, ansiDim, color)
	}
}

func colorizeResult(r string, color bool) string {
	switch r {
	case "success", "delivered":
		return colorize(r, ansiGreen, color)
	case "client_error", "dropped":
		return colorize(r, ansiYellow, color)
	case "server_error":
		return colorize(r, ansiRed, color)
	default:
		return colorize(r, ansiDim, color)
	}
}

func colorize(s, code string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func applyDim(s string, color bool) string {
	return colorize(s, ansiDim, color)
}

func applyBold(s string, color bool) string {
	return colorize(s, ansiBright, color)
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// truncateVisual shortens s to at most max visible runes, marking the cut with an ellipsis.
// Color codes are dropped from truncated segments.
func truncateVisual(s string, max int) string {
	if visualLen(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	runes := []rune(stripANSI(s))
	return string(runes[:max-1]) + "…"
}

// wrapSegments packs segments into lines no wider than width. Lines after the first
// start with cont. A segment that cannot fit on its own line is truncated.
func wrapSegments(segs []string, sep string, width int, cont string) []string {
	var (
		lines []string
		cur   string
	)
	for _, s := range segs {
		if cur == "" {
			prefix := ""
			if len(lines) > 0 {
				prefix = cont
			}
			cur = prefix + truncateVisual(s, width-visualLen(prefix))
			continue
		}
		if visualLen(cur)+visualLen(sep)+visualLen(s) <= width {
			cur += sep + s
			continue
		}
		lines = append(lines, cur)
		cur = cont + truncateVisual(s, width-visualLen(cont))
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
