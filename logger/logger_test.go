package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem: "test",
		JSON:      true,
		MinLevel:  slog.LevelDebug,
		Output:    &buf,
	})

	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))

	return out
}

func TestGetCarriesContextValues(t *testing.T) { //nolint:paralleltest
	buf := captureJSON(t)

	ctx := WithOrganization(t.Context(), "org-1")
	ctx = WithActor(ctx, "user-7")
	ctx = WithEntity(ctx, "task", "42")

	Get(ctx).Info("transition applied")

	line := lastLine(t, buf)
	assert.Equal(t, "test", line["subsystem"])
	assert.Equal(t, "org-1", line["organization_id"])
	assert.Equal(t, "user-7", line["actor_id"])
	assert.Equal(t, "task", line["entity_type"])
	assert.Equal(t, "42", line["entity_id"])
}

func TestSubsystemOverride(t *testing.T) { //nolint:paralleltest
	buf := captureJSON(t)

	Get(WithSubsystem(t.Context(), "importer")).Info("hello")

	assert.Equal(t, "importer", lastLine(t, buf)["subsystem"])
	assert.Equal(t, "test", GetSubsystem(t.Context()))
}

func TestMutedLoggerWritesNothing(t *testing.T) { //nolint:paralleltest
	buf := captureJSON(t)

	Get(WithMuted(t.Context(), true)).Error("should not appear")

	assert.Empty(t, buf.String())
}

func TestAnnotatedErrorAttributes(t *testing.T) { //nolint:paralleltest
	buf := captureJSON(t)

	base := errors.New("boom") //nolint:err113
	err := AnnotateError(base, "transition", "start_task")

	require.ErrorIs(t, err, base)

	Get().Error("failed", "error", err, "plain", errors.New("other")) //nolint:err113

	line := lastLine(t, buf)
	assert.Equal(t, "start_task", line["transition"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "other", line["plain"])
}

func TestAnnotateNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, AnnotateError(nil, "k", "v"))
}

func TestConfigureLoggingRejectsBadValues(t *testing.T) { //nolint:paralleltest
	_, err := ConfigureLogging(Config{Level: "loud"})
	require.ErrorIs(t, err, ErrInvalidLogLevel)

	_, err = ConfigureLogging(Config{Level: "info", Output: "/dev/null"})
	require.ErrorIs(t, err, ErrInvalidLogOutput)

	logger, err := ConfigureLogging(Config{Subsystem: "cfg", Level: "debug", LegacyLevel: "warn", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, "cfg", GetSubsystem(t.Context()))
}

func TestWithLoggerOverridesDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(t.Context(), base)
	ctx = WithOrganization(ctx, "org-9")

	Get(ctx).Debug("routed")

	line := lastLine(t, &buf)
	assert.Equal(t, "routed", line["msg"])
	assert.Equal(t, "org-9", line["organization_id"])

	buf.Reset()
	Get(WithMuted(ctx, true)).Error("silenced")
	assert.Zero(t, buf.Len())
}
