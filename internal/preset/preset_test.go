package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/khatm/internal/khatm"
)

func TestDefault(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	require.Len(t, p, 3)

	assert.Equal(t, khatm.Preset{
		MinBound:          1,
		MaxBound:          1000,
		StopNumber:        14000,
		CompletionMessage: "The salavat khatm is complete.",
	}, p[khatm.TypeSalavat])
	assert.Equal(t, int64(100), p[khatm.TypeZekr].PeriodNumber)
	assert.True(t, p[khatm.TypeZekr].ResetOnPeriod)
	assert.Equal(t, int64(20), p[khatm.TypeQuran].MaxBound)
}

func TestParse_OverrideKeepsOtherDefaults(t *testing.T) {
	p, err := Parse([]byte(`
presets: zekr: {
	period_number: 33
	daily_reset:   true
}
`), "ops.cue")
	require.NoError(t, err)

	assert.Equal(t, int64(33), p[khatm.TypeZekr].PeriodNumber)
	assert.True(t, p[khatm.TypeZekr].DailyReset)
	assert.Equal(t, int64(1000), p[khatm.TypeZekr].MaxBound)
	assert.Equal(t, int64(14000), p[khatm.TypeSalavat].StopNumber)
}

func TestParse_UnlimitedMax(t *testing.T) {
	p, err := Parse([]byte(`presets: quran: {min_bound: 5, max_bound: 0}`), "ops.cue")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p[khatm.TypeQuran].MaxBound)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"max below min", `presets: salavat: {min_bound: 10, max_bound: 5}`},
		{"negative", `presets: zekr: stop_number: -1`},
		{"unknown type", `presets: tasbih: {}`},
		{"unknown field", `presets: quran: colour: "red"`},
		{"wrong kind", `presets: quran: daily_reset: "yes"`},
		{"syntax", `presets: {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "ops.cue")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.cue")
	require.NoError(t, os.WriteFile(path, []byte(`presets: salavat: stop_number: 1000`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), p[khatm.TypeSalavat].StopNumber)

	p, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(14000), p[khatm.TypeSalavat].StopNumber)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestError_Position(t *testing.T) {
	_, err := Parse([]byte("presets: {\n"), "ops.cue")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ops.cue", perr.Pos.Filename())
}
