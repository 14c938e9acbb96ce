package expctrl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedSimTask wraps SimHardwareTask to record the wall-clock order in
// which devices call Start, so the primary-last invariant can be asserted
// directly rather than inferred from side effects.
type orderedSimTask struct {
	*SimHardwareTask
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (t *orderedSimTask) Start() error {
	t.mu.Lock()
	*t.order = append(*t.order, t.name)
	t.mu.Unlock()
	return t.SimHardwareTask.Start()
}

func TestStreamingCoordinatorStartsPrimaryLast(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("primary", "PFI0", true, 1000))
	require.NoError(t, exp.AddAODevice("secondary1", "PFI0", false, 1000))
	require.NoError(t, exp.AddAODevice("secondary2", "PFI0", false, 1000))
	for _, name := range []string{"primary", "secondary1", "secondary2"} {
		var _, cerr = exp.AddAOChannel(name, 0)
		require.NoError(t, cerr)
	}

	require.NoError(t, exp.Constant("primary", "ao0", 0, 0.01, 1, false))
	require.NoError(t, exp.Constant("secondary1", "ao0", 0, 0.01, 1, false))
	require.NoError(t, exp.Constant("secondary2", "ao0", 0, 0.01, 1, false))

	var _, err = exp.Compile()
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex

	var newTask = func(dev *Device) (HardwareTask, error) {
		return &orderedSimTask{SimHardwareTask: NewSimHardwareTask(), name: dev.PhysicalName(), order: &order, mu: &mu}, nil
	}

	var coord = NewStreamingCoordinator(exp, newTask, nil)
	var ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, coord.Stream(ctx, 100, 1))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, "primary", order[len(order)-1], "primary device must be the last to start")
}

func TestStreamingCoordinatorAggregatesFailures(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("primary", "PFI0", true, 1000))
	require.NoError(t, exp.AddAODevice("bad", "PFI0", false, 1000))
	for _, name := range []string{"primary", "bad"} {
		var _, cerr = exp.AddAOChannel(name, 0)
		require.NoError(t, cerr)
	}

	require.NoError(t, exp.Constant("primary", "ao0", 0, 0.01, 1, false))
	require.NoError(t, exp.Constant("bad", "ao0", 0, 0.01, 1, false))

	var _, err = exp.Compile()
	require.NoError(t, err)

	var newTask = func(dev *Device) (HardwareTask, error) {
		if dev.PhysicalName() == "bad" {
			return nil, &HardwareError{Kind: "alloc", Detail: "simulated failure"}
		}
		return NewSimHardwareTask(), nil
	}

	var sink = NewMemoryErrorLogSink()
	var coord = NewStreamingCoordinator(exp, newTask, sink)
	var ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var streamErr = coord.Stream(ctx, 100, 1)
	require.Error(t, streamErr)

	var failed *StreamFailedError
	require.ErrorAs(t, streamErr, &failed)
	assert.Contains(t, failed.DeviceErrors, "bad")

	require.Len(t, sink.Entries, 1)
	assert.Equal(t, "bad", sink.Entries[0].Device)
	assert.Equal(t, "alloc", sink.Entries[0].Err.Kind)
}

func TestStreamingCoordinatorRepeats(t *testing.T) {
	var exp = NewExperiment()
	require.NoError(t, exp.AddAODevice("primary", "PFI0", true, 1000))
	var _, cerr = exp.AddAOChannel("primary", 0)
	require.NoError(t, cerr)
	require.NoError(t, exp.Constant("primary", "ao0", 0, 0.01, 1, false))

	var _, err = exp.Compile()
	require.NoError(t, err)

	var task = NewSimHardwareTask()
	var newTask = func(dev *Device) (HardwareTask, error) {
		return task, nil
	}

	var coord = NewStreamingCoordinator(exp, newTask, nil)
	var ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, coord.Stream(ctx, 100, 3))

	assert.GreaterOrEqual(t, len(task.AnalogWrites), 3, "each repetition should write at least its first chunk")
}
