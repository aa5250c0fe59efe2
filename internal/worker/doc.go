// Package worker hosts the background dispatch pool: claim loops over
// send_queue, the SMTP transport the engine delivers through, and the
// redis-backed per-domain throttle. Everything here assumes at-least-once
// processing; the queue schema and the engine's send records are what make
// retries safe.
package worker
