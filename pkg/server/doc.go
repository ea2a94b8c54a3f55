// Package server provides the admin HTTP surface for Meridian: proxy
// selection, stats, health, and Prometheus metrics.
package server
