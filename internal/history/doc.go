// Package history keeps a local SQLite audit trail of signal changes.
//
// The Repository stores one row per accepted store notification in the
// signal_history table created by the embedded migrations. The Recorder
// consumes a store subscription, writes each notification and prunes rows
// older than the configured retention on an interval.
//
// The Signal Store stays purely in-memory; history is only a consumer of its
// notifications and is never read back into the store.
//
// Usage:
//
//	repo := history.NewRepository(db.DB)
//	rec := history.NewRecorder(repo, history.RecorderConfig{
//	    Retention:     cfg.History.Retention,
//	    PruneInterval: cfg.History.PruneInterval,
//	})
//	sub := hub.Subscribe(ctx)
//	go rec.Run(ctx, sub.C)
package history
