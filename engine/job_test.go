package engine

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Context-level job queue
// ---------------------------------------------------------------------------

func TestJobsRunInFIFOOrder(t *testing.T) {
	_, ctx := newTestRealm(t)

	var order []int32
	record := func(ctx *Context, args []Value) Value {
		order = append(order, args[0].Int32())
		return Undefined
	}

	for i := int32(1); i <= 3; i++ {
		ctx.EnqueueJob(record, []Value{NewInt32(i)})
	}
	if !ctx.IsJobPending() {
		t.Fatal("queue reports empty")
	}
	for ctx.IsJobPending() {
		ran, err := ctx.ExecutePendingJob()
		if !ran {
			t.Fatal("pending job did not run")
		}
		if !err.IsNull() {
			t.Fatalf("job failed: %v", err)
		}
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("execution order = %v, want [1 2 3]", order)
	}
}

func TestNestedEnqueuesGoToTheBack(t *testing.T) {
	_, ctx := newTestRealm(t)

	var order []string
	ctx.EnqueueJob(func(ctx *Context, args []Value) Value {
		order = append(order, "first")
		ctx.EnqueueJob(func(ctx *Context, args []Value) Value {
			order = append(order, "nested")
			return Undefined
		}, nil)
		return Undefined
	}, nil)
	ctx.EnqueueJob(func(ctx *Context, args []Value) Value {
		order = append(order, "second")
		return Undefined
	}, nil)

	for ctx.IsJobPending() {
		if ran, err := ctx.ExecutePendingJob(); !ran || !err.IsNull() {
			t.Fatalf("drain stalled: ran=%v err=%v", ran, err)
		}
	}
	want := []string{"first", "second", "nested"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestExecutePendingJobOnEmptyQueue(t *testing.T) {
	_, ctx := newTestRealm(t)

	ran, err := ctx.ExecutePendingJob()
	if ran {
		t.Error("empty queue claims to have run a job")
	}
	if !err.IsNull() {
		t.Errorf("empty drain error = %v", err)
	}
}

func TestJobFailureSurfacesErrorValue(t *testing.T) {
	rt, ctx := newTestRealm(t)

	ctx.EnqueueJob(func(ctx *Context, args []Value) Value {
		return ctx.ThrowTypeError("job broke")
	}, nil)

	ran, err := ctx.ExecutePendingJob()
	if !ran {
		t.Fatal("failing job did not run")
	}
	if err.IsNull() {
		t.Fatal("failure produced no error value")
	}
	if kind := ctx.ErrorKindOf(err); kind != ErrorType {
		t.Errorf("error kind = %v", kind)
	}
	rt.FreeValue(err)

	// The failure travels in the return value, not the pending slot.
	if ctx.HasException() {
		t.Error("job failure left a pending exception")
	}
}

func TestJobArgumentsAreRetainedUntilExecution(t *testing.T) {
	rt, ctx := newTestRealm(t)

	s := ctx.NewString("payload")
	ctx.EnqueueJob(func(ctx *Context, args []Value) Value {
		if got, ok := stringContent(args[0]); !ok || got != "payload" {
			t.Errorf("job argument = %v", args[0])
		}
		return Undefined
	}, []Value{s})
	rt.FreeValue(s) // queue holds its own share

	if ran, err := ctx.ExecutePendingJob(); !ran || !err.IsNull() {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
}

// ---------------------------------------------------------------------------
// Runtime-level drain
// ---------------------------------------------------------------------------

func TestRuntimeDrainFollowsAttachOrder(t *testing.T) {
	rt := NewRuntime()
	defer rt.Free()
	a := NewContext(rt)
	defer a.Free()
	b := NewContext(rt)
	defer b.Free()

	var order []string
	b.EnqueueJob(func(ctx *Context, args []Value) Value {
		order = append(order, "b")
		return Undefined
	}, nil)
	a.EnqueueJob(func(ctx *Context, args []Value) Value {
		order = append(order, "a")
		return Undefined
	}, nil)

	if !rt.IsJobPending() {
		t.Fatal("runtime sees no pending jobs")
	}
	ran, from, err := rt.ExecutePendingJob()
	if !ran || !err.IsNull() {
		t.Fatalf("first drain: ran=%v err=%v", ran, err)
	}
	if from != a {
		t.Error("drain did not start with the first attached context")
	}
	ran, from, err = rt.ExecutePendingJob()
	if !ran || !err.IsNull() || from != b {
		t.Fatalf("second drain: ran=%v from=%p err=%v", ran, from, err)
	}
	if rt.IsJobPending() {
		t.Error("jobs remain after the drain")
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}
