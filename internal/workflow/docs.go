// Package workflow hosts long-lived, per-entity state machines that survive
// process restarts.
//
// A Workflow is started under a workflow id, receives named signals one at a
// time and answers queries from a snapshot. Everything a workflow learns from
// the outside world goes through Executor.Execute, which runs a registered
// activity under a RetryPolicy and journals the result. After a crash,
// Engine.Recover rebuilds each open run by feeding the workflow its
// journaled signals and the recorded activity results in their original
// order, so workflow code must be deterministic: no wall clock, randomness or
// environment reads outside activities.
//
// # Runs
//
// Each execution is a Run. A workflow that wants to cap its journal returns
// ContinueAsNew; the engine closes the current run, opens a fresh one with the
// same input and starts the workflow again, discarding the old history.
//
// # Usage
//
//	reg := workflow.NewRegistry()
//	workflow.Register(reg, "calculateRoute", acts.CalculateRoute)
//
//	engine, err := workflow.NewEngine(workflow.Options{
//	    Journal:  journal,
//	    Registry: reg,
//	    Factory:  lifecycle.NewFactory(cfg),
//	    Policy:   workflow.DefaultRetryPolicy(),
//	    Logger:   logger,
//	})
//	if _, err = engine.Recover(ctx); err != nil {
//	    logger.Error("recovery failed", "error", err)
//	}
//	defer engine.Shutdown(context.Background())
//
//	err = engine.Start(ctx, id, input)
//	err = engine.Signal(ctx, id, "updateLocation", "Midpoint City")
//	snapshot, err := engine.Query(ctx, id)
package workflow
