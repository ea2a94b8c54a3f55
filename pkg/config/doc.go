// Package config defines the Meridian configuration model and its
// loading pipeline: YAML file, defaults, MERIDIAN_* environment variable
// overrides, validation, and an fsnotify-based watcher for the proxy
// inventory file.
package config
