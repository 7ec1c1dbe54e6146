package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

// TestScenarios runs the shared scenario suite, which is also what
// "khatm test testdata/scenarios" runs.
func TestScenarios(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestFindScenarios_Filter(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "salavat_*")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "salavat_stop.yaml", filepath.Base(paths[0]))

	_, err = FindScenarios(scenariosDir, "[")
	assert.Error(t, err)

	_, err = FindScenarios(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "a_good.yaml", validScenario)
	bad := writeScenario(t, dir, "b_bad.yaml", "name: [")

	res, err := RunSuite(context.Background(), []string{good, bad})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "basic", res.Scenarios[0].Name)
	assert.Equal(t, "b_bad", res.Scenarios[1].Name)
	assert.Contains(t, res.Scenarios[1].Errors[0], "failed to load scenario")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunSuite(ctx, []string{good})
	assert.ErrorIs(t, err, context.Canceled)
}
