// Package service is the single write path of the engine.
//
// It validates requests, runs them against the matching engine and the
// envelope store under one lock, appends accepted commands to the
// operation log and publishes prices and metrics. Transports in api/
// only translate wire messages into calls on OrderService.
package service
