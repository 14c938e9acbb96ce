package expctrl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperimentEnforcesSinglePrimary(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", true, 1000))

	var err = exp.AddDODevice("dev1", "PFI1", true, 1000)
	assert.True(t, errors.Is(err, ErrMultiplePrimary))
}

func TestExperimentRejectsDuplicateDeviceName(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", true, 1000))

	var err = exp.AddDODevice("dev0", "PFI0", false, 1000)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestExperimentCompileRequiresPrimary(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", false, 1000))

	var _, err = exp.Compile()
	assert.True(t, errors.Is(err, ErrNoPrimary))
}

func TestExperimentCompileAcrossDevices(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("primary", "PFI0", true, 1000))
	require.NoError(t, exp.AddDODevice("secondary", "PFI0", false, 1000))
	var _, aerr = exp.AddAOChannel("primary", 0)
	require.NoError(t, aerr)
	var _, derr = exp.AddDOChannel("secondary", 0, 0)
	require.NoError(t, derr)

	require.NoError(t, exp.Constant("primary", "ao0", 0, 1, 5, false))
	require.NoError(t, exp.High("secondary", "port0/line0", 0, 0.5))

	var stopTime, err = exp.Compile()
	require.NoError(t, err)
	assert.Equal(t, 1.0, stopTime) // longest edit stop time across devices

	assert.True(t, exp.IsCompiled())
	assert.True(t, exp.IsFreshCompiled())
	assert.Len(t, exp.CompiledDevices(), 2)
}

func TestExperimentAddChannelWrongKindRejected(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", true, 1000))

	var _, err = exp.AddDOChannel("dev0", 0, 0)
	assert.True(t, errors.Is(err, ErrWrongDeviceKind))
}

func TestExperimentCalcSignalDiagnostic(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", true, 1000))
	var _, cerr = exp.AddAOChannel("dev0", 0)
	require.NoError(t, cerr)
	require.NoError(t, exp.Constant("dev0", "ao0", 0, 1, 2, false))
	var _, err = exp.Compile()
	require.NoError(t, err)

	var matrix, serr = exp.CalcSignal("dev0", 0, 1, 4)
	require.NoError(t, serr)
	require.Len(t, matrix, 1)
	assert.Len(t, matrix[0], 4)
}

func TestExperimentResetDevices(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("dev0", "PFI0", true, 1000))

	var tasks []*SimHardwareTask
	var newTask = func(dev *Device) (HardwareTask, error) {
		var task = NewSimHardwareTask()
		tasks = append(tasks, task)
		return task, nil
	}

	require.NoError(t, exp.ResetDevices(context.Background(), newTask))
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].cleared)
}
