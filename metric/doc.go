// Package metric provides Prometheus-based metrics collection and an HTTP
// server for Chameleon session monitoring.
//
// The package offers a centralized metrics registry managing both core
// synchronization metrics (dispatcher state, event fan-out, layer occupancy,
// instance counts) and custom component-specific metrics. It includes an HTTP
// server exposing metrics in Prometheus format.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go server.Start()
//
// Components register their own metrics through the MetricsRegistrar
// interface; core metrics are registered automatically at construction.
package metric
