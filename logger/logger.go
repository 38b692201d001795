// Package logger configures the process-wide slog logger and decorates it with
// values carried on the context (subsystem, organization, actor, entity).
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Default name of the subsystem, set by ConfigureLoggingWithOptions.
var subsystem atomic.Value //nolint:gochecknoglobals

// configMutex serializes changes to the global slog and log defaults.
var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

const (
	muteKey         contextKey = "mute"
	subsystemKey    contextKey = "subsystem"
	organizationKey contextKey = "organization_id"
	actorKey        contextKey = "actor_id"
	requestIDKey    contextKey = "request_id"
	valuesKey       contextKey = "loggerValues"
	baseLoggerKey   contextKey = "baseLogger"
)

// ErrInvalidLogOutput is returned when an invalid log output destination is specified.
var ErrInvalidLogOutput = errors.New("invalid log output")

// ErrInvalidLogLevel is returned when a level name cannot be parsed.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config is the environment-facing logging configuration.
type Config struct {
	Subsystem   string `env:"LOG_SUBSYSTEM"    envDefault:"amp-fsm" yaml:"subsystem"`
	JSON        bool   `env:"LOG_JSON"         envDefault:"false"   yaml:"json"`
	Level       string `env:"LOG_LEVEL"        envDefault:"info"    yaml:"level"`
	LegacyLevel string `env:"LEGACY_LOG_LEVEL" envDefault:"info"    yaml:"legacyLevel"`
	Output      string `env:"LOG_OUTPUT"       envDefault:"stdout"  yaml:"output"`
}

// SlogLevel parses Level.
func (c Config) SlogLevel() (slog.Level, error) {
	return parseLevel(c.Level)
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level

	if name == "" {
		return slog.LevelInfo, nil
	}

	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}

	return level, nil
}

// Options is used to configure logging.
type Options struct {
	Subsystem   string
	JSON        bool
	MinLevel    slog.Level
	LegacyLevel slog.Level
	Output      io.Writer

	// Handler replaces the text/JSON handler entirely, e.g. with an
	// OpenTelemetry log bridge. Output and JSON are ignored when set.
	Handler slog.Handler
}

// ConfigureLoggingWithOptions configures logging for the application and
// returns the new default logger. Concurrent calls are serialized.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handler := opts.Handler

	if handler == nil {
		handlerOpts := &slog.HandlerOptions{Level: opts.MinLevel}

		if opts.JSON {
			handler = slog.NewJSONHandler(opts.Output, handlerOpts)
		} else {
			handler = slog.NewTextHandler(opts.Output, handlerOpts)
		}
	}

	logger := slog.New(&errorAttrHandler{inner: handler})

	slog.SetDefault(logger)

	// Third party packages that still use the log package end up in slog too.
	def := log.Default()
	*def = *slog.NewLogLogger(handler, opts.LegacyLevel)

	subsystem.Store(opts.Subsystem)

	return logger
}

// ConfigureLogging configures logging from a Config. Extra options are
// applied after the config has been translated.
func ConfigureLogging(cfg Config, opts ...func(*Options)) (*slog.Logger, error) {
	minLevel, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	legacyLevel, err := parseLevel(cfg.LegacyLevel)
	if err != nil {
		return nil, err
	}

	var output io.Writer

	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogOutput, cfg.Output)
	}

	options := Options{
		Subsystem:   cfg.Subsystem,
		JSON:        cfg.JSON,
		MinLevel:    minLevel,
		LegacyLevel: legacyLevel,
		Output:      output,
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options), nil
}

// WithMuted suppresses all output from loggers obtained with this context.
func WithMuted(ctx context.Context, muted bool) context.Context {
	return context.WithValue(ensure(ctx), muteKey, muted)
}

func isMuted(ctx context.Context) bool {
	muted, ok := ctx.Value(muteKey).(bool)

	return ok && muted
}

// WithSubsystem overrides the default subsystem for loggers obtained with this context.
func WithSubsystem(ctx context.Context, name string) context.Context {
	return context.WithValue(ensure(ctx), subsystemKey, name)
}

// GetSubsystem returns the subsystem from the context, or the configured default.
func GetSubsystem(ctx context.Context) string {
	if sub, ok := ensure(ctx).Value(subsystemKey).(string); ok {
		return sub
	}

	if def, ok := subsystem.Load().(string); ok {
		return def
	}

	return ""
}

// WithOrganization tags logs with the tenant the work belongs to.
func WithOrganization(ctx context.Context, organizationID string) context.Context {
	if organizationID == "" {
		return ensure(ctx)
	}

	return context.WithValue(ensure(ctx), organizationKey, organizationID)
}

// GetOrganization returns the organization set by WithOrganization.
func GetOrganization(ctx context.Context) (string, bool) {
	org, ok := ensure(ctx).Value(organizationKey).(string)

	return org, ok
}

// WithActor tags logs with the user that triggered the work.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ensure(ctx)
	}

	return context.WithValue(ensure(ctx), actorKey, actorID)
}

// GetActor returns the actor set by WithActor.
func GetActor(ctx context.Context) (string, bool) {
	actor, ok := ensure(ctx).Value(actorKey).(string)

	return actor, ok
}

// WithRequestId adds a request ID to the context.
func WithRequestId(ctx context.Context, requestId string) context.Context { //nolint:revive
	return context.WithValue(ensure(ctx), requestIDKey, requestId)
}

// GetRequestId returns the request ID set by WithRequestId.
func GetRequestId(ctx context.Context) (string, bool) { //nolint:revive
	reqID, ok := ensure(ctx).Value(requestIDKey).(string)

	return reqID, ok
}

// WithEntity tags logs with the entity a transition is operating on.
func WithEntity(ctx context.Context, entityType, entityID string) context.Context {
	return With(ctx, "entity_type", entityType, "entity_id", entityID)
}

// hostname holds the pod name in k8s and the machine name elsewhere.
var hostname = sync.OnceValue(func() string { //nolint:gochecknoglobals
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	return h
})

// GetPodName returns the pod name (or hostname if not running in k8s).
func GetPodName() string {
	return hostname()
}

func ensure(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}

	return ctx
}

// getRealContext returns the first non-nil context, or context.Background().
func getRealContext(ctx ...context.Context) context.Context {
	for _, c := range ctx {
		if c != nil {
			return c
		}
	}

	return context.Background()
}

// nullHandler discards everything. It backs muted loggers.
type nullHandler struct{}

func (n *nullHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (n *nullHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (n *nullHandler) WithAttrs(_ []slog.Attr) slog.Handler          { return n }
func (n *nullHandler) WithGroup(_ string) slog.Handler               { return n }

var nullLogger = slog.New(&nullHandler{}) //nolint:gochecknoglobals

// Get returns a logger carrying the values stored on the context.
//
//nolint:contextcheck
func Get(ctx ...context.Context) *slog.Logger {
	realCtx := getRealContext(ctx...)

	if isMuted(realCtx) {
		return nullLogger
	}

	base := slog.Default()
	if l, ok := realCtx.Value(baseLoggerKey).(*slog.Logger); ok && l != nil {
		base = l
	}

	logger := base.With(
		"subsystem", GetSubsystem(realCtx),
		"pod", GetPodName())

	if requestID, ok := GetRequestId(realCtx); ok {
		logger = logger.With("request_id", requestID)
	}

	if org, ok := GetOrganization(realCtx); ok {
		logger = logger.With("organization_id", org)
	}

	if actor, ok := GetActor(realCtx); ok {
		logger = logger.With("actor_id", actor)
	}

	if vals := getValues(realCtx); vals != nil {
		logger = logger.With(vals...)
	}

	return logger
}

// WithLogger makes Get derive its loggers from l instead of slog.Default.
// Tests use it to route output to the test log.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ensure(ctx), baseLoggerKey, l)
}

// With returns a new context with the given key-value pairs added. They are
// attached to every logger obtained from it.
func With(ctx context.Context, values ...any) context.Context {
	ctx = ensure(ctx)

	if len(values) == 0 {
		return ctx
	}

	existing := getValues(ctx)
	vals := make([]any, 0, len(existing)+len(values))
	vals = append(vals, existing...)
	vals = append(vals, values...)

	return context.WithValue(ctx, valuesKey, vals)
}

func getValues(ctx context.Context) []any {
	vals, _ := ensure(ctx).Value(valuesKey).([]any)

	return vals
}
