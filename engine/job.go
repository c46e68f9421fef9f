package engine

// ---------------------------------------------------------------------------
// Job queue: deferred work drained outside script execution
// ---------------------------------------------------------------------------

// JobFunc is a queued unit of deferred work. args is borrowed for the
// duration of the call.
type JobFunc func(ctx *Context, args []Value) Value

type job struct {
	fn   JobFunc
	args []Value
}

// EnqueueJob schedules fn with owned duplicates of args on this Context's
// queue. Jobs run strictly in enqueue order when the host drains the queue.
func (ctx *Context) EnqueueJob(fn JobFunc, args []Value) {
	owned := make([]Value, len(args))
	for i, a := range args {
		owned[i] = ctx.rt.DupValue(a)
	}
	ctx.jobs.enqueue(job{fn: fn, args: owned})
	if ctx.rt.dumpFlags&DumpJobs != 0 {
		ctx.rt.logger.Debugf("job enqueued, %d pending", ctx.jobs.len())
	}
}

// IsJobPending reports whether this Context has queued jobs.
func (ctx *Context) IsJobPending() bool {
	return ctx.jobs.len() > 0
}

// ExecutePendingJob runs the oldest queued job. Returns (true, Null) after
// a successful job, (true, error) when the job threw (the caller owns the
// error), and (false, Null) when the queue was empty. Jobs enqueued while a
// job runs go to the back of the queue.
func (ctx *Context) ExecutePendingJob() (bool, Value) {
	j, ok := ctx.jobs.dequeue()
	if !ok {
		return false, Null
	}
	if ctx.rt.dumpFlags&DumpJobs != 0 {
		ctx.rt.logger.Debugf("job executing, %d pending", ctx.jobs.len())
	}
	r := j.fn(ctx, j.args)
	for _, a := range j.args {
		ctx.rt.FreeValue(a)
	}
	if r.IsException() {
		return true, ctx.GetException()
	}
	ctx.rt.FreeValue(r)
	return true, Null
}

// IsJobPending reports whether any Context on the Runtime has queued jobs.
func (rt *Runtime) IsJobPending() bool {
	for _, ctx := range rt.contexts {
		if ctx.IsJobPending() {
			return true
		}
	}
	return false
}

// ExecutePendingJob drains one job runtime-wide: Contexts are visited in
// attach order and the first with pending work runs its oldest job. The
// second return is the Context the job ran on, or nil when idle.
func (rt *Runtime) ExecutePendingJob() (bool, *Context, Value) {
	for _, ctx := range rt.contexts {
		if ctx.IsJobPending() {
			ran, err := ctx.ExecutePendingJob()
			return ran, ctx, err
		}
	}
	return false, nil, Null
}
