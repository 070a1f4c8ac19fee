// Package config defines the load balancer configuration model and its
// YAML loader. Configuration is read once at startup; the backend set and
// all policies are fixed for the process lifetime.
package config
