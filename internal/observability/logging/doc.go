// Package logging configures log/slog for the worker and the one-shot
// commands and carries a run ID through a check cycle or dispatch run.
//
// The worker logs JSON to stdout (NewLogger); commands run from a terminal
// log text to stderr (NewTextLogger). Both honor LOG_LEVEL. Within a run, derive the logger from
// the context so every line carries the same run_id:
//
//	ctx = logging.WithRunID(ctx, logging.NewRunID())
//	logging.WithRunIDLogger(ctx, slog.Default()).Info("check cycle started")
package logging
