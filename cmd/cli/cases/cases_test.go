package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/myrjola/casegen/internal/errors"
	"github.com/myrjola/casegen/internal/generation"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func simulationEnv(key string) (string, bool) {
	if key == "CASEGEN_CREDENTIAL" {
		return "simulation", true
	}
	return "", false
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantMode  string
		wantNodes int
	}{
		{
			name:      "multiphase from yaml",
			args:      []string{"--config", "testdata/finance.yaml"},
			wantMode:  "multiphase",
			wantNodes: 24,
		},
		{
			name:     "freeform from flags",
			args:     []string{"--mode", "freeform", "--story", "A ledger goes missing.", "--objective", "audit trails"},
			wantMode: "freeform",
		},
		{
			name:     "flag overrides yaml",
			args:     []string{"--config", "testdata/finance.yaml", "--mode", "structured", "--suspects", "4"},
			wantMode: "structured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(t.Context(), NewGenerateCommand(simulationEnv), tt.args, &stdout, &stderr)
			require.NoError(t, err)

			var result generation.Result
			require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
			assert.Equal(t, tt.wantMode, string(result.Mode))
			assert.NotEmpty(t, result.Nodes)
			assert.NotEmpty(t, result.Edges)
			if tt.wantNodes > 0 {
				assert.Len(t, result.Nodes, tt.wantNodes)
			}
			assert.Contains(t, stderr.String(), "100%")
		})
	}
}

func TestGenerate_invalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), NewGenerateCommand(simulationEnv), []string{"--mode", "freeform"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "story is required")
	assert.Empty(t, stdout.String())
}

func TestGenerateThenValidate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "case.json")
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), NewGenerateCommand(simulationEnv),
		[]string{"--config", "testdata/finance.yaml", "--out", out}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	stdout.Reset()
	err = run(t.Context(), NewValidateCommand(), []string{out}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ok: 24 nodes")
}

func TestValidate_reportsViolations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	broken := `{
  "nodes": [{"id": "start", "type": "story", "data": {}}],
  "edges": [{"id": "e1", "source": "start", "target": "ghost"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(t.Context(), NewValidateCommand(), []string{path}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, stdout.String(), `dangling-edge (e1): target "ghost" does not exist`)
	assert.Contains(t, stdout.String(), "identify-count")
}

func run(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceUsage = true
	return errors.Wrap(cmd.ExecuteContext(ctx), "execute command")
}
