package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/api"
	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/source"
	"github.com/Siriusbar/SlopedIn/internal/tracker"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "slopedin version dev\n", out)
}

func TestReadText(t *testing.T) {
	text, err := readText(strings.NewReader("ignored"), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = readText(strings.NewReader("  from stdin \n"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	_, err = readText(strings.NewReader("   "), nil)
	require.ErrorIs(t, err, errEmptyText)
}

func TestPrintResult(t *testing.T) {
	result := domain.ClassificationResult{Label: domain.LabelAI, Score: 0.87}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, outputText, "text", result))
	assert.Contains(t, buf.String(), "87% AI")

	buf.Reset()
	require.NoError(t, printResult(&buf, outputJSON, "text", result))
	var body map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "AI", body["label"])

	require.Error(t, printResult(&buf, "yaml", "text", result))
}

func TestClassifyCommand_LocalRelay(t *testing.T) {
	post := "I'm thrilled to announce that we will delve into the ever-evolving " +
		"tapestry of synergy. Let that sink in. Thoughts? 🚀"

	out, err := execute(t, "", "classify", "--output", "json", post)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &body))
	assert.Equal(t, "AI", body["label"])
}

func TestClassifyCommand_EmptyInput(t *testing.T) {
	_, err := execute(t, "", "classify")
	require.ErrorIs(t, err, errEmptyText)
}

type memoryToggle struct {
	enabled bool
}

func (m *memoryToggle) Enabled() bool { return m.enabled }

func (m *memoryToggle) SetEnabled(_ context.Context, enabled bool) error {
	m.enabled = enabled
	return nil
}

type noItems struct{}

func (noItems) Snapshot() []tracker.Item               { return nil }
func (noItems) Get(source.Handle) (tracker.Item, bool) { return tracker.Item{}, false }
func (noItems) Stats() tracker.Stats                   { return tracker.Stats{} }

func TestToggleCommand_API(t *testing.T) {
	gin.SetMode(gin.TestMode)

	toggle := &memoryToggle{enabled: true}
	router := gin.New()
	api.RegisterPipelineRoutes(router,
		api.NewPipelineHandler(noItems{}, toggle, nil, nil, infralogger.NewNop()),
		nil, time.Second, infralogger.NewNop())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	out, err := execute(t, "", "toggle", "--api", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "AI detection is on")

	out, err = execute(t, "", "toggle", "--api", server.URL, "off")
	require.NoError(t, err)
	assert.Contains(t, out, "AI detection is off")
	assert.False(t, toggle.enabled)
}

func TestToggleCommand_RejectsUnknownArgument(t *testing.T) {
	_, err := execute(t, "", "toggle", "maybe")
	require.Error(t, err)
}

func TestToggleCommand_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("PREFERENCE_STORE", "redis")
	t.Setenv("REDIS_ADDRESS", mr.Addr())

	out, err := execute(t, "", "toggle", "off")
	require.NoError(t, err)
	assert.Contains(t, out, "AI detection is off")

	stored := mr.HGet("slopedin:preferences", "enabled")
	assert.Equal(t, "false", stored)

	out, err = execute(t, "", "toggle")
	require.NoError(t, err)
	assert.Contains(t, out, "AI detection is off")
}
