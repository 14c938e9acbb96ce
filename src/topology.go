package expctrl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topology is the YAML-declared shape of an experiment: its devices and
// the channels each exposes, before any instructions have been scheduled.
// A control-host process loads one of these at startup and uses it to
// populate an Experiment via Topology.Build.
type Topology struct {
	Devices []TopologyDevice `yaml:"devices"`
}

// TopologyDevice describes one device entry in a topology file.
type TopologyDevice struct {
	Name       string           `yaml:"name"`
	Kind       string           `yaml:"kind"` // "analog" or "digital"
	TrigLine   string           `yaml:"trig_line"`
	Primary    bool             `yaml:"primary"`
	SampRate   float64          `yaml:"samp_rate"`
	AOChans    []int            `yaml:"ao_channels,omitempty"`
	DOChans    []TopologyDOChan `yaml:"do_channels,omitempty"`
	HardwareID string           `yaml:"hardware_id,omitempty"`
}

// TopologyDOChan identifies one digital line by port and line number.
type TopologyDOChan struct {
	Port int `yaml:"port"`
	Line int `yaml:"line"`
}

// LoadTopology reads and parses a topology file from path.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("expctrl: read topology %s: %w", path, err)
	}

	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("expctrl: parse topology %s: %w", path, err)
	}
	return &top, nil
}

// Build populates a fresh Experiment from the topology: every device is
// registered, and every declared channel added, but no instructions are
// scheduled. The caller still owns calling the scheduling methods
// (Experiment.Constant, .Sine, .High, .Low, ...) and Compile afterward.
func (t *Topology) Build() (*Experiment, error) {
	exp := NewExperiment()

	for _, td := range t.Devices {
		switch td.Kind {
		case "analog":
			if err := exp.AddAODevice(td.Name, td.TrigLine, td.Primary, td.SampRate); err != nil {
				return nil, fmt.Errorf("expctrl: device %s: %w", td.Name, err)
			}
			for _, idx := range td.AOChans {
				if _, err := exp.AddAOChannel(td.Name, idx); err != nil {
					return nil, fmt.Errorf("expctrl: device %s: %w", td.Name, err)
				}
			}
		case "digital":
			if err := exp.AddDODevice(td.Name, td.TrigLine, td.Primary, td.SampRate); err != nil {
				return nil, fmt.Errorf("expctrl: device %s: %w", td.Name, err)
			}
			for _, dc := range td.DOChans {
				if _, err := exp.AddDOChannel(td.Name, dc.Port, dc.Line); err != nil {
					return nil, fmt.Errorf("expctrl: device %s: %w", td.Name, err)
				}
			}
		default:
			return nil, fmt.Errorf("%w: device %s has unknown kind %q (want \"analog\" or \"digital\")", ErrBadName, td.Name, td.Kind)
		}
	}

	return exp, nil
}
