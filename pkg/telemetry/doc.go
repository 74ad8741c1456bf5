// Package telemetry provides observability instrumentation for devforge:
// structured logging (zerolog), tracing (OpenTelemetry with a stdout
// exporter), and Prometheus metrics.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Component loggers carry structured fields through a run:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithRunID(runID).WithHost(host)
//	logger.Info("applying role")
//
// Key metrics exposed when the metrics endpoint is enabled:
//
//   - devforge_runs_started_total{role}
//   - devforge_runs_completed_total{status}
//   - devforge_run_duration_seconds{status}
//   - devforge_tasks_executed_total{role,status}
//   - devforge_task_duration_seconds{role,action}
//   - devforge_handlers_fired_total{role}
//   - devforge_archives_built_total{status}
//   - devforge_errors_by_class_total{class}
package telemetry
