package hopdb

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext bundles everything one query execution needs: the
// session's space, the storage and schema collaborators, the shared
// runner, the variable holder, config, logging and metrics. All per-query
// state hangs off the executor itself; the context is read-only during
// execution.
type ExecutionContext struct {
	space    GraphSpaceID
	storage  StorageClient
	schema   SchemaRegistry
	vars     *VariableHolder
	queue    *SerialQueue
	cfg      Config
	log      *slog.Logger
	metrics  *Metrics
	trace    *TraceLog
	timezone *time.Location
	queryID  string
}

// ContextOptions configures a new ExecutionContext.
type ContextOptions struct {
	Space    GraphSpaceID
	Storage  StorageClient
	Schema   SchemaRegistry
	Vars     *VariableHolder
	Runner   *Runner
	Config   Config
	Logger   *slog.Logger
	Metrics  *Metrics
	Trace    *TraceLog
	Timezone *time.Location
}

// NewExecutionContext builds a context for one query, assigning it a
// fresh query id for log correlation.
func NewExecutionContext(o ContextOptions) *ExecutionContext {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	vars := o.Vars
	if vars == nil {
		vars = NewVariableHolder()
	}
	metrics := o.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	runner := o.Runner
	if runner == nil {
		runner = NewRunner(o.Config.WorkerPoolSize)
	}
	tz := o.Timezone
	if tz == nil {
		tz = time.UTC
	}
	queryID := uuid.NewString()
	return &ExecutionContext{
		space:    o.Space,
		storage:  o.Storage,
		schema:   o.Schema,
		vars:     vars,
		queue:    NewSerialQueue(runner),
		cfg:      o.Config,
		log:      log.With("query_id", queryID),
		metrics:  metrics,
		trace:    o.Trace,
		timezone: tz,
		queryID:  queryID,
	}
}

// Space returns the session's current graph space.
func (c *ExecutionContext) Space() GraphSpaceID { return c.space }

// Storage returns the storage client.
func (c *ExecutionContext) Storage() StorageClient { return c.storage }

// Schema returns the schema registry.
func (c *ExecutionContext) Schema() SchemaRegistry { return c.schema }

// Vars returns the variable holder.
func (c *ExecutionContext) Vars() *VariableHolder { return c.vars }

// Queue returns the query's serial runner queue.
func (c *ExecutionContext) Queue() *SerialQueue { return c.queue }

// Config returns the feature flags.
func (c *ExecutionContext) Config() Config { return c.cfg }

// Log returns the query-scoped logger.
func (c *ExecutionContext) Log() *slog.Logger { return c.log }

// Metrics returns the shared metrics.
func (c *ExecutionContext) Metrics() *Metrics { return c.metrics }

// Trace returns the trace ring buffer, or nil when none was configured.
func (c *ExecutionContext) Trace() *TraceLog { return c.trace }

// Timezone returns the session timezone.
func (c *ExecutionContext) Timezone() *time.Location { return c.timezone }

// QueryID returns the query's correlation id.
func (c *ExecutionContext) QueryID() string { return c.queryID }
