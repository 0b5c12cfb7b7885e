// Package jobcore implements the core state machine of a distributed
// job-queue engine: the atomic per-job transitions that keep a job's
// lifecycle consistent across many concurrent producers, workers, and
// administrators sharing one store.
//
// jobcore is a library, not a service. Import it, configure a store,
// and call Engine's methods directly.
//
//	e, err := jobcore.New(
//	    jobcore.WithStore(redisstore.New(client, "myapp:")),
//	)
//
// # Architecture
//
// Every operation Engine exposes resolves a job's current state from
// the store and executes as one atomic transaction — there is no
// in-process caching and no long-lived "Job" handle, since any cached
// view could go stale between two calls. The eight operations (Data,
// Complete, Fail, Retry, Depends, Heartbeat, Priority, Update) are
// built from six smaller components, each its own package: store (the
// storage facade), queueconfig (read-through config), queueview (the
// per-queue ordered-set views), depgraph (the dependency DAG),
// history (stage history and pub/sub events), and gc (Completed-GC).
//
// jobcore deliberately does not implement queue-level pop/put/recur,
// transport, worker supervision, or metrics emission — it only
// publishes events on named channels and leaves consumption of those
// events to the embedding process.
package jobcore
