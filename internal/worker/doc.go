// Package worker connects the execution gate to a task queue.
//
// Two transports are provided. Worker consumes a Redis stream through a
// consumer group; AMQPWorker consumes a RabbitMQ queue. Both pass every
// delivered task through a Processor, which runs the gate and maps the
// outcome to a Disposition:
//
//   - Complete: the result is published and the delivery acknowledged.
//   - Retry: the task is put back with its attempt counter incremented.
//   - DeadLetter: the task goes to the error stream or dead-letter queue.
//   - Requeue: the task belongs to another worker and is handed back to the
//     queue without consuming an attempt, after which the worker backs off.
//
// Example usage:
//
//	g := gate.New(cfg.Role(), cache, registry, logger, collector)
//	processor := worker.NewProcessor(cfg.WorkerID, g, cfg.MaxRetries, collector, logger)
//
//	w := worker.NewWorker(cfg, redisClient, processor, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// Health checks, Prometheus metrics and the routing view are served by a
// separate HTTP server:
//
//	healthServer := worker.NewHealthServer(worker.HealthConfig{
//	    Port:    8082,
//	    Role:    cfg.Role(),
//	    Checks:  map[string]worker.CheckFunc{"redis": worker.RedisCheck(redisClient)},
//	    Routing: cache,
//	    Metrics: collector,
//	    Logger:  logger,
//	})
//	healthServer.Start()
//	defer healthServer.Stop()
//
// Producers for both transports live in this package too, so that tests,
// the CLI and the workers agree on the envelope format.
package worker
