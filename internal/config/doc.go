// Package config provides centralized configuration management for the
// InsightAgent runtime, combining a JSON configuration file with sensible
// defaults so the daemon can boot without any configuration present.
package config
