package sensor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ Sensor = (*Files)(nil)
var _ Sensor = (*Fake)(nil)
var _ Sensor = Multi(nil)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParseRaw(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"bare integer", "1234\n", 1234, false},
		{"bare float", " 12.5 ", 12.5, false},
		{"w1 ok", "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n", 23125, false},
		{"w1 bad crc", "72 01 4b 46 7f ff 0e 10 57 : crc=57 NO\n72 01 4b 46 7f ff 0e 10 57 t=85000\n", 0, true},
		{"negative w1", "ff ff : crc=00 YES\nff ff t=-1250\n", -1250, false},
		{"empty", "", 0, true},
		{"garbage", "hello", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRaw(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestW1Read(t *testing.T) {
	dir := t.TempDir()
	water := writeFile(t, dir, "water", "aa : crc=aa YES\naa t=25375\n")
	air := writeFile(t, dir, "air", "aa : crc=aa YES\naa t=21000\n")

	s := NewW1(map[string]string{"water_temp": water, "air_temp": air}, zap.NewNop())

	assert.InDelta(t, 25.375, s.Read("water_temp"), 1e-9)
	assert.InDelta(t, 21.0, s.Read("air_temp"), 1e-9)
	assert.ElementsMatch(t, []string{"water_temp", "air_temp"}, s.Names())
}

func TestFilesReadFailureIsNaN(t *testing.T) {
	s := NewFiles(map[string]Source{
		"water_level": {Path: filepath.Join(t.TempDir(), "missing")},
	}, zap.NewNop())

	assert.True(t, math.IsNaN(s.Read("water_level")), "missing file must read as NaN")
	assert.True(t, math.IsNaN(s.Read("unknown")), "unknown name must read as NaN")
}

func TestFilesScaleAndOffset(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "in_voltage0_raw", "2048\n")

	s := NewFiles(map[string]Source{
		"water_level": {Path: p, Scale: 0.05, Offset: -48},
	}, zap.NewNop())

	assert.InDelta(t, 100.0, s.Read("water_level"), 1e-9)
}

func TestMulti(t *testing.T) {
	a := NewFake().Script("a", 1)
	b := NewFake().Script("b", 2)
	m := Multi{"a": a, "b": b}

	assert.Equal(t, 1.0, m.Read("a"))
	assert.Equal(t, 2.0, m.Read("b"))
	assert.True(t, math.IsNaN(m.Read("c")))
}

func TestFakeScript(t *testing.T) {
	f := NewFake().Script("x", 1, math.NaN(), 3)

	assert.Equal(t, 1.0, f.Read("x"))
	assert.True(t, math.IsNaN(f.Read("x")))
	assert.Equal(t, 3.0, f.Read("x"))
	assert.Equal(t, 3.0, f.Read("x"), "last value repeats")
	assert.Equal(t, 4, f.ReadCount("x"))
	assert.True(t, math.IsNaN(f.Read("unscripted")))
}
