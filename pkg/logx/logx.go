// Package logx is the relay's leveled, component-tagged logger.
//
// Every line reads "[time] [component] LEVEL: message". Debug output is off
// unless DEBUG=1, and DEBUG_DOMAINS=gate,pager narrows the package-level Debug
// to the named domains. The most recent lines are kept in memory and served by
// the metrics server.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

// Levels.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z"
	recentSize = 500
)

// Entry is one captured log line.
type Entry struct {
	Time      time.Time `json:"time"`
	Component string    `json:"component"`
	Level     Level     `json:"level"`
	Domain    string    `json:"domain,omitempty"`
	Message   string    `json:"message"`
}

func (e *Entry) format() string {
	ts := e.Time.UTC().Format(timeLayout)
	if e.Domain != "" {
		return fmt.Sprintf("[%s] [%s] %s: [%s] %s", ts, e.Component, e.Level, e.Domain, e.Message)
	}
	return fmt.Sprintf("[%s] [%s] %s: %s", ts, e.Component, e.Level, e.Message)
}

// ring keeps the last len(buf) entries.
type ring struct {
	buf  []Entry
	next int
	full bool
}

func (r *ring) add(e Entry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// each visits entries oldest first.
func (r *ring) each(fn func(*Entry)) {
	if r.full {
		for i := r.next; i < len(r.buf); i++ {
			fn(&r.buf[i])
		}
	}
	for i := 0; i < r.next; i++ {
		fn(&r.buf[i])
	}
}

// sink is the shared destination of every Logger.
type sink struct {
	mu      sync.Mutex
	out     io.Writer
	debug   bool
	domains map[string]bool // nil allows every domain
	recent  ring
}

//nolint:gochecknoglobals // process-wide log destination
var std = newSink()

func newSink() *sink {
	s := &sink{recent: ring{buf: make([]Entry, recentSize)}}
	debug := os.Getenv("DEBUG")
	s.debug = debug == "1" || strings.EqualFold(debug, "true")
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		s.domains = domainSet(strings.Split(domains, ","))
	}
	return s
}

func domainSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.TrimSpace(n)] = true
	}
	return set
}

func (s *sink) emit(e Entry) {
	e.Time = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent.add(e)
	out := s.out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintln(out, e.format())
}

func (s *sink) debugFor(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.debug {
		return false
	}
	return domain == "" || s.domains == nil || s.domains[domain]
}

// SetOutput redirects log output; nil restores stderr.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

// SetDebug turns debug output on or off.
func SetDebug(enabled bool) {
	std.mu.Lock()
	std.debug = enabled
	std.mu.Unlock()
}

// SetDebugDomains limits the package-level Debug to domains. No domains allows all.
func SetDebugDomains(domains []string) {
	std.mu.Lock()
	std.domains = domainSet(domains)
	std.mu.Unlock()
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	return std.debugFor("")
}

// Recent returns up to limit of the newest captured entries, oldest first,
// optionally restricted to one component. limit <= 0 means all retained.
func Recent(component string, limit int) []Entry {
	var out []Entry
	std.mu.Lock()
	std.recent.each(func(e *Entry) {
		if component == "" || strings.EqualFold(e.Component, component) {
			out = append(out, *e)
		}
	})
	std.mu.Unlock()
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Logger tags lines with a component name.
type Logger struct {
	component string
}

// NewLogger returns a logger for component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the tag this logger writes.
func (l *Logger) Component() string { return l.component }

func (l *Logger) logf(level Level, format string, args []any) {
	std.emit(Entry{Component: l.component, Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Debug(format string, args ...any) {
	if DebugEnabled() {
		l.logf(LevelDebug, format, args)
	}
}

func (l *Logger) Info(format string, args ...any)  { l.logf(LevelInfo, format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.logf(LevelWarn, format, args) }
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args) }

type requestIDKey struct{}

// WithRequestID returns ctx carrying a correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Debug writes a domain-filtered debug line tagged with the request ID in ctx.
//
//	DEBUG=1 DEBUG_DOMAINS=gate,pager relaybot
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !std.debugFor(domain) {
		return
	}
	component := RequestID(ctx)
	if component == "" {
		component = "system"
	}
	std.emit(Entry{Component: component, Level: LevelDebug, Domain: domain, Message: fmt.Sprintf(format, args...)})
}

//nolint:gochecknoglobals // package-level helpers
var system = NewLogger("system")

func Infof(format string, args ...any) { system.Info(format, args...) }
func Warnf(format string, args ...any) { system.Warn(format, args...) }

// Errorf logs and returns fmt.Errorf(format, args...).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	system.Error("%v", err)
	return err
}

// Wrap logs and returns err prefixed with msg. A nil err stays nil.
//
//	if err != nil { return logx.Wrap(err, "open pager store") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Errorf("%s: %w", msg, err)
}
