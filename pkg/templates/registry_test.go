package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/pkg/errors"
)

func TestRegistryLoadAndRender(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "telegram")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "greeting.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Hello {{escape .Name}}"), 0o644))

	reg, err := NewRegistry(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram/greeting"}, reg.List())

	tmpl, err := reg.GetTemplate("telegram/greeting")
	require.NoError(t, err)

	rendered, err := tmpl.Render(map[string]string{"Name": "op_1"})
	require.NoError(t, err)
	assert.Equal(t, "Hello op\\_1", rendered)

	// parsed content is fixed at load time
	require.NoError(t, os.WriteFile(path, []byte("Hi {{.Name}}"), 0o644))
	rendered, err = tmpl.Render(map[string]string{"Name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", rendered)
}

func TestRegistryLazyLoad(t *testing.T) {
	base := t.TempDir()
	reg, err := NewRegistry(base)
	require.NoError(t, err)

	path := filepath.Join(base, "telegram", "late.tmpl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("Symbol {{.Symbol}}"), 0o644))

	rendered, err := reg.Render("telegram/late", map[string]string{"Symbol": "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, "Symbol BTCUSDT", rendered)

	_, err = reg.Render("telegram/missing", nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRegistry_MissingKeyFails(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "strict.tmpl"), []byte("{{.Absent}}"), 0o644))

	reg, err := NewRegistry(base)
	require.NoError(t, err)

	_, err = reg.Render("strict", map[string]string{})
	assert.Error(t, err)
}

func TestEmbeddedConfirmationTemplates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prompt, err := Get().Render("telegram/confirmation_prompt", map[string]any{
		"EventType":  "MACRO_SHOCK",
		"Confidence": "HIGH",
		"Symbol":     "BTCUSDT",
		"Source":     "wire_feed",
		"Entities":   []string{"FED", "BTC"},
		"DetectedAt": now.Add(-3 * time.Minute),
		"Now":        now,
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "*MACRO\\_SHOCK* (HIGH)")
	assert.Contains(t, prompt, "Source: wire\\_feed")
	assert.Contains(t, prompt, "Entities: FED, BTC")
	assert.Contains(t, prompt, "3 minutes ago")

	for outcome, want := range map[string]string{
		"confirmed": "✅ *Confirmed*",
		"ignored":   "🚫 *Ignored*",
		"expired":   "⌛ *Expired*",
	} {
		text, err := Get().Render("telegram/confirmation_outcome", map[string]string{"Prompt": "p", "Outcome": outcome})
		require.NoError(t, err)
		assert.Contains(t, text, want)
	}
}
