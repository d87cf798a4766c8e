// Package observability provides the three ambient pillars for wizardd:
// Prometheus metrics, structured logging with sensitive-data redaction, and
// OpenTelemetry distributed tracing.
//
// Metrics cover the process's actual work: tool execution counts and
// durations, worker poll outcomes, task terminal states, and which
// callback-delivery path each task result took (inline, S3 offload, or
// summary-only fallback). They register with the default Prometheus
// registry and are served at /metrics.
//
// Logging is built on log/slog with JSON or text output, automatic
// correlation-ID extraction from context (request, conversation, user,
// task), and regex-based redaction of API keys, bearer tokens, JWTs, and
// password-shaped values before they reach any sink.
//
// Tracing exports OTLP over gRPC when an endpoint is configured and is a
// no-op otherwise. Span helpers mirror the process's pipeline: agent.run,
// llm.<provider>, tool_executor.execute.<name>, worker.dispatch,
// worker.callback. Context propagates outward through HTTP headers and
// inward through task.payload.trace_headers so a worker's dispatch span
// parents the producer's span.
package observability
