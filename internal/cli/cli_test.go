package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/agent"
	"github.com/Protocol-Lattice/recall/pkg/models"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

type harness struct {
	t      *testing.T
	dbPath string
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, dbPath: filepath.Join(t.TempDir(), "recall.db")}
}

func (h *harness) run(stdin string, args ...string) (string, *Error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	argv := append([]string{"recall"}, args...)
	argv = append(argv[:2], append([]string{"--store-path", h.dbPath, "--log-level", "error"}, argv[2:]...)...)
	e := run(context.Background(), argv, strings.NewReader(stdin), &out, &errOut)
	return out.String(), e
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestIngestThenRecall(t *testing.T) {
	h := newHarness(t)
	notes := writeFile(t, "paris.md", "# Paris\n\nParis is rainy in winter. Paris has many museums.\n")
	fruit := writeFile(t, "fruit.txt", "Bananas are yellow and rich in potassium.")

	out, e := h.run("", "ingest", "--tags", "travel", notes, fruit)
	require.Nil(t, e)
	assert.Contains(t, out, "paris.md: 1 chunk(s)")
	assert.Contains(t, out, "Stored 2 chunk(s) from 2 document(s).")

	out, e = h.run("", "recall", "--limit", "1", "weather", "in", "Paris")
	require.Nil(t, e)
	assert.Contains(t, out, "1. [id=")
	assert.Contains(t, out, "source=paris.md")
	assert.Contains(t, out, "Paris is rainy in winter.")
	assert.NotContains(t, out, "Bananas")
}

func TestIngestReportsMissingFiles(t *testing.T) {
	h := newHarness(t)
	_, e := h.run("", "ingest", filepath.Join(t.TempDir(), "missing.txt"))
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Code)
}

func TestRecallOnEmptyStore(t *testing.T) {
	h := newHarness(t)
	out, e := h.run("", "recall", "anything")
	require.Nil(t, e)
	assert.Equal(t, "No memories found.\n", out)
}

func TestToolsListsCatalog(t *testing.T) {
	h := newHarness(t)
	out, e := h.run("", "tools")
	require.Nil(t, e)
	for _, name := range []string{"get_weather", "send_email", "current_time", "calculate", "store_memory", "recall_memory"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "Never ask the user to provide parameter values.")
}

func TestChatWithOfflineCompleter(t *testing.T) {
	h := newHarness(t)
	script := strings.Join([]string{
		"hello there",
		`tool:store_memory {"content": "The wifi password is hunter2"}`,
		`tool:recall_memory {"query": "wifi password"}`,
		`tool:missing_tool {}`,
		"exit",
		"never reached",
	}, "\n")

	out, e := h.run(script, "chat", "--completer", "offline")
	require.Nil(t, e)
	assert.Contains(t, out, "Offline response: hello there")
	assert.Contains(t, out, "Stored 1 memory chunk(s).")
	assert.Contains(t, out, "1. The wifi password is hunter2")
	assert.Contains(t, out, "Unknown function: missing_tool")
	assert.NotContains(t, out, "never reached")
	assert.True(t, strings.HasSuffix(out, "Bye.\n"))
}

func TestUnknownEmbedderIsRejected(t *testing.T) {
	h := newHarness(t)
	_, e := h.run("", "recall", "--embedder", "nope", "x")
	require.NotNil(t, e)
	assert.Contains(t, e.Message, "unknown embedder provider")
}

func TestConfigFileOverlay(t *testing.T) {
	h := newHarness(t)
	cfgPath := writeFile(t, "recall.yaml", "store:\n  backend: memory\nrecall:\n  limit: 2\n")
	out, e := h.run("", "recall", "--config", cfgPath, "anything")
	require.Nil(t, e)
	assert.Equal(t, "No memories found.\n", out)
	_, err := os.Stat(h.dbPath)
	assert.True(t, os.IsNotExist(err), "memory backend must not create the sqlite file")
}

func TestIngestRedactsContactDetails(t *testing.T) {
	h := newHarness(t)
	note := writeFile(t, "contact.txt", "Reach Dana at dana@example.com about the garden project.")

	_, e := h.run("", "ingest", "--redact", note)
	require.Nil(t, e)

	out, e := h.run("", "recall", "garden project")
	require.Nil(t, e)
	assert.Contains(t, out, "Reach Dana at [REDACTED] about the garden project.")
	assert.NotContains(t, out, "dana@example.com")
}

// cancelingCompleter ends the session context during its first call.
type cancelingCompleter struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancelingCompleter) Complete(ctx context.Context, _ []models.Message, _ []tools.Tool) (models.Completion, error) {
	c.calls++
	c.cancel()
	return models.Completion{}, ctx.Err()
}

func TestChatLoopStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	completer := &cancelingCompleter{cancel: cancel}
	registry, err := tools.NewRegistry()
	require.NoError(t, err)
	conv, err := agent.New(completer, registry, nil, agent.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, chatLoop(ctx, conv, strings.NewReader("first\nsecond\nthird\n"), &out))
	assert.Equal(t, 1, completer.calls)
	assert.Contains(t, out.String(), "error: ")
	assert.True(t, strings.HasSuffix(out.String(), "Bye.\n"))
}
