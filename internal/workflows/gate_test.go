package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

type fakeRun struct {
	client.WorkflowRun
	id       string
	decision approval.Decision
	err      error
}

func (r *fakeRun) GetID() string    { return r.id }
func (r *fakeRun) GetRunID() string { return "run-1" }

func (r *fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	if r.err != nil {
		return r.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	*(valuePtr.(*approval.Decision)) = r.decision
	return nil
}

type fakeValue struct {
	data []byte
}

func (v fakeValue) HasValue() bool { return v.data != nil }

func (v fakeValue) Get(valuePtr interface{}) error {
	return json.Unmarshal(v.data, valuePtr)
}

type fakeClient struct {
	started   []client.StartWorkflowOptions
	inputs    []ApprovalInput
	run       *fakeRun
	startErr  error
	signals   map[string]DecisionSignal
	requests  map[string]approval.Request
	signalErr error
}

func (c *fakeClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.started = append(c.started, options)
	c.inputs = append(c.inputs, args[0].(ApprovalInput))
	c.run.id = options.ID
	return c.run, nil
}

func (c *fakeClient) SignalWorkflow(_ context.Context, workflowID string, _ string, _ string, arg interface{}) error {
	if c.signalErr != nil {
		return c.signalErr
	}
	if c.signals == nil {
		c.signals = make(map[string]DecisionSignal)
	}
	c.signals[workflowID] = arg.(DecisionSignal)
	return nil
}

func (c *fakeClient) QueryWorkflow(_ context.Context, workflowID string, _ string, _ string, _ ...interface{}) (converter.EncodedValue, error) {
	req, ok := c.requests[workflowID]
	if !ok {
		return nil, serviceerror.NewNotFound("workflow not found")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return fakeValue{data: data}, nil
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "autopatch-approval-t-1-hetzner-command", WorkflowID("t-1", instruction.TypeHetznerCommand))
}

func TestTemporalGate_Await(t *testing.T) {
	t.Run("starts workflow and returns decision", func(t *testing.T) {
		fc := &fakeClient{run: &fakeRun{decision: approval.Decision{TicketID: "t-1", Approved: true, By: "ops"}}}
		gate := NewTemporalGate(fc, GateConfig{}, zaptest.NewLogger(t))

		d, err := gate.Await(context.Background(), hetznerRequest())
		require.NoError(t, err)
		assert.True(t, d.Approved)

		require.Len(t, fc.started, 1)
		assert.Equal(t, "autopatch-approval-t-1-hetzner-command", fc.started[0].ID)
		assert.Equal(t, TaskQueue, fc.started[0].TaskQueue)
		assert.Equal(t, fc.started[0].ID, fc.inputs[0].Request.ID)
		assert.Equal(t, approval.DefaultTimeout, fc.inputs[0].Timeout)
	})

	t.Run("start failure", func(t *testing.T) {
		fc := &fakeClient{run: &fakeRun{}, startErr: errors.New("frontend unavailable")}
		gate := NewTemporalGate(fc, GateConfig{TaskQueue: "q"}, nil)

		_, err := gate.Await(context.Background(), hetznerRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "starting approval workflow")
	})

	t.Run("notify failure is classified", func(t *testing.T) {
		cause := temporal.NewNonRetryableApplicationError("nobody reachable", ErrTypeNotifyFailed, nil)
		fc := &fakeClient{run: &fakeRun{err: cause}}
		gate := NewTemporalGate(fc, GateConfig{}, nil)

		_, err := gate.Await(context.Background(), hetznerRequest())
		assert.ErrorIs(t, err, approval.ErrNotifyFailed)
	})

	t.Run("cancelled wait", func(t *testing.T) {
		fc := &fakeClient{run: &fakeRun{}}
		gate := NewTemporalGate(fc, GateConfig{}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d, err := gate.Await(ctx, hetznerRequest())
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, d.Approved)
	})
}

func TestTemporalGate_Decide(t *testing.T) {
	id := WorkflowID("t-1", instruction.TypeHetznerCommand)
	req := hetznerRequest()
	req.ID = id

	t.Run("signals the workflow", func(t *testing.T) {
		fc := &fakeClient{requests: map[string]approval.Request{id: req}}
		gate := NewTemporalGate(fc, GateConfig{}, nil)

		d, err := gate.Decide(context.Background(), id, true, "ops")
		require.NoError(t, err)
		assert.True(t, d.Approved)
		assert.Equal(t, "t-1", d.TicketID)
		assert.Equal(t, instruction.TypeHetznerCommand, d.InstructionType)
		assert.Equal(t, DecisionSignal{Approved: true, By: "ops"}, fc.signals[id])
	})

	t.Run("unknown request", func(t *testing.T) {
		gate := NewTemporalGate(&fakeClient{}, GateConfig{}, nil)

		_, err := gate.Decide(context.Background(), "nope", true, "ops")
		assert.ErrorIs(t, err, approval.ErrUnknownRequest)
	})

	t.Run("workflow already closed", func(t *testing.T) {
		fc := &fakeClient{
			requests:  map[string]approval.Request{id: req},
			signalErr: serviceerror.NewNotFound("workflow execution already completed"),
		}
		gate := NewTemporalGate(fc, GateConfig{}, nil)

		_, err := gate.Decide(context.Background(), id, false, "ops")
		assert.ErrorIs(t, err, approval.ErrUnknownRequest)
	})
}
