package expctrl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopologyYAML = `
devices:
  - name: primary
    kind: analog
    trig_line: PFI0
    primary: true
    samp_rate: 10000
    ao_channels: [0, 1]
  - name: secondary
    kind: digital
    trig_line: PFI0
    primary: false
    samp_rate: 10000
    do_channels:
      - port: 0
        line: 0
      - port: 0
        line: 1
`

func TestLoadTopologyAndBuild(t *testing.T) {
	var dir = t.TempDir()
	var path = filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTopologyYAML), 0644))

	var top, err = LoadTopology(path)
	require.NoError(t, err)
	require.Len(t, top.Devices, 2)

	var exp, berr = top.Build()
	require.NoError(t, berr)

	var primary, perr = exp.Device("primary")
	require.NoError(t, perr)
	assert.True(t, primary.IsPrimary())
	assert.Equal(t, Analog, primary.Kind())

	var secondary, serr = exp.Device("secondary")
	require.NoError(t, serr)
	assert.Equal(t, Digital, secondary.Kind())

	var _, cerr = secondary.Channel("port0/line1")
	assert.NoError(t, cerr)
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	var top = &Topology{Devices: []TopologyDevice{{Name: "dev0", Kind: "weird"}}}
	var _, err = top.Build()
	assert.Error(t, err)
}
