package analysis

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/timefmt-go"
)

// LogLevel orders log severities. A logger emits entries at its own level
// and every more severe one.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG"}

func (l LogLevel) String() string {
	if l < LevelError || l > LevelDebug {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a level name to a LogLevel. Unknown names give
// LevelWarn.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	}
	return LevelWarn
}

// Logger is the interface used by the engine for logging.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child logger carrying fields on every entry.
	With(fields map[string]any) Logger
}

// timestampFormat is the strftime layout for log timestamps (always UTC).
const timestampFormat = "%Y-%m-%dT%H:%M:%SZ"

type logField struct {
	key   string
	value any
}

// textLogger writes one line per entry:
//
//	[LEVEL] 2006-01-02T15:04:05Z message key=value ...
//
// Children made by With share the writer and its lock.
type textLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  LogLevel
	now    func() time.Time
	fields []logField // sorted by key
}

// NewLogger returns a text logger filtering at level. A nil w logs to
// os.Stderr.
func NewLogger(level LogLevel, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &textLogger{mu: &sync.Mutex{}, out: w, level: level, now: time.Now}
}

func (l *textLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.key] = f.value
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = make([]logField, 0, len(merged))
	for k, v := range merged {
		child.fields = append(child.fields, logField{k, v})
	}
	sort.Slice(child.fields, func(i, j int) bool { return child.fields[i].key < child.fields[j].key })
	return &child
}

func (l *textLogger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args) }
func (l *textLogger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args) }
func (l *textLogger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args) }
func (l *textLogger) Errorf(format string, args ...any) { l.log(LevelError, format, args) }

func (l *textLogger) log(level LogLevel, format string, args []any) {
	if level > l.level {
		return
	}
	var b strings.Builder
	b.Grow(128)
	fmt.Fprintf(&b, "[%s] %s ", level, timefmt.Format(l.now().UTC(), timestampFormat))
	fmt.Fprintf(&b, format, args...)
	for _, f := range l.fields {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(fieldString(f.value))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

// fieldString renders a field value, quoting it when it contains blanks.
// Stringers are only evaluated here, so expensive summaries cost nothing
// on filtered entries.
func fieldString(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		return fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' }) {
		return strconv.Quote(s)
	}
	return s
}

type discardLogger struct{}

func (discardLogger) Debugf(string, ...any)        {}
func (discardLogger) Infof(string, ...any)         {}
func (discardLogger) Warnf(string, ...any)         {}
func (discardLogger) Errorf(string, ...any)        {}
func (d discardLogger) With(map[string]any) Logger { return d }

// newProjectLogger picks the logger for a project from its options.
func newProjectLogger(opts Options) Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	if opts.LogLevel != "" {
		return NewLogger(ParseLogLevel(opts.LogLevel), nil)
	}
	return discardLogger{}
}

// ----------------------------------------------------------------------------
// Value set summaries
// ----------------------------------------------------------------------------

// LogOptions bounds how much of a value set a log line shows.
type LogOptions struct {
	MaxMembers    int // Members listed per set (default: 5)
	MaxProperties int // Property names listed per object (default: 3)
}

func (o LogOptions) withDefaults() LogOptions {
	if o.MaxMembers <= 0 {
		o.MaxMembers = 5
	}
	if o.MaxProperties <= 0 {
		o.MaxProperties = 3
	}
	return o
}

// setSummary is a log field rendering a value set compactly: members
// sorted, objects with a preview of their properties, arrays with their
// length, and the tail folded into +N.
type setSummary struct {
	vs   ValueSet
	opts LogOptions
}

func summarize(vs ValueSet, opts LogOptions) setSummary {
	return setSummary{vs: vs, opts: opts.withDefaults()}
}

func (s setSummary) String() string {
	if s.vs.IsEmpty() {
		return "{}"
	}
	parts := make([]string, 0, s.vs.Len())
	for _, v := range s.vs.Values() {
		parts = append(parts, memberSummary(v, s.opts))
	}
	sort.Strings(parts)
	return "{" + truncateList(parts, s.opts.MaxMembers) + "}"
}

func memberSummary(v *Value, opts LogOptions) string {
	switch {
	case v.array != nil:
		return fmt.Sprintf("array[len=%d]", v.array.Len())
	case v.kind == KindObject && v.object != nil:
		names := v.object.MemberNames()
		if len(names) == 0 {
			return v.String()
		}
		return v.String() + "{" + truncateList(names, opts.MaxProperties) + "}"
	}
	return v.String()
}

// argsSummary renders the declared slots of an argument set.
type argsSummary struct {
	as   ArgumentSet
	opts LogOptions
}

func (a argsSummary) String() string {
	n := a.as.DeclaredParamCount()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = summarize(a.as.Args[i], a.opts).String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// truncateList joins items with ", " and appends +N for the ones past limit.
func truncateList(items []string, limit int) string {
	if limit <= 0 || len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:limit], ", ") + ", +" + strconv.Itoa(len(items)-limit)
}
