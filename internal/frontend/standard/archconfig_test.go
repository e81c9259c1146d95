package standard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadArchConfigParsesYAML(t *testing.T) {
	in := "cores: 4\nsa_size: 64\nweight_stationary: true\n"
	fc, err := ReadArchConfig(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 4, fc.Cores)
	require.Equal(t, 64, fc.SASize)
	require.True(t, fc.WS)
	require.Equal(t, 0, fc.VUSize)
}

func TestFileConfigApplyOnlyOverridesSetFields(t *testing.T) {
	cfg := ArchConfig{NCores: 1, SASize: 16, VUSize: 16, WS: false}
	c := DefaultConstants()

	fc := FileConfig{Cores: 8}
	newCfg, newC := fc.Apply(cfg, c)

	require.Equal(t, 8, newCfg.NCores)
	require.Equal(t, 16, newCfg.SASize)
	require.Equal(t, c.DataTypeWidth, newC.DataTypeWidth)
}

func TestReadArchConfigEmptyReaderYieldsZeroValue(t *testing.T) {
	fc, err := ReadArchConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, FileConfig{}, fc)
}
