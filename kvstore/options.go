package kvstore

import (
	"go.uber.org/zap"

	"github.com/occdb/txncore/occtxn"
	"github.com/prometheus/client_golang/prometheus"
)

// config holds NewStore's assembled settings before indexes and
// protocol wiring are built from them.
type config struct {
	indexNames    []string
	flags         occtxn.Flag
	snapshotReads bool
	logger        *zap.SugaredLogger
	registry      prometheus.Registerer
}

func defaultConfig() config {
	return config{indexNames: []string{"default"}}
}

// StoreOption configures a Store at construction time, in the idiom of
// the teacher's NewDatabase(level IsolationLevel) generalized to a
// variadic option list.
type StoreOption func(*config)

// WithIndexes replaces the default single "default" index with the
// named set, each backed by its own BTreeIndex.
func WithIndexes(names ...string) StoreOption {
	return func(c *config) { c.indexNames = names }
}

// WithLowLevelScan selects node-version phantom tracking
// (FlagLowLevelScan) for every session this Store begins, instead of
// the default absent-range tracking.
func WithLowLevelScan() StoreOption {
	return func(c *config) { c.flags |= occtxn.FlagLowLevelScan }
}

// WithSnapshotReads wraps the default OCCProtocol in a
// SnapshotProtocol, enabling the read-only commit fast path.
func WithSnapshotReads() StoreOption {
	return func(c *config) { c.snapshotReads = true }
}

// WithLogger sets the zap.SugaredLogger threaded into every
// transaction this Store begins. Passing nil is equivalent to omitting
// the option (a nop logger is used).
func WithLogger(logger *zap.SugaredLogger) StoreOption {
	return func(c *config) { c.logger = logger }
}

// WithMetricsRegistry registers the Store's Metrics collectors against
// reg instead of leaving them unregistered.
func WithMetricsRegistry(reg prometheus.Registerer) StoreOption {
	return func(c *config) { c.registry = reg }
}
