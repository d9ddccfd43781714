/*
Package config reads contentflow configuration.

Config wraps decoded YAML or JSON and extracts typed values with defaults.
Keys are dotted paths into nested sections:

	cfg, err := config.FromFile("contentflow.yaml")
	if err != nil {
	    return err
	}
	workers := cfg.Int("pool.max_workers", 0)
	timeout := cfg.Duration("producer.timeout", 0) // "250ms", or a number of seconds

Missing keys and type mismatches return the default. Floats convert to ints
only without a fractional part.

Settings collects the keys the runtime understands and validates them:

	pool:
	  max_workers: 16
	  idle_timeout: 30s
	producer:
	  timeout: 2s
	merger:
	  timeout: 5s
	journal:
	  path: ./failures.db
	log:
	  level: debug

Component sections of a manifest are handed to factories as a Config too,
via Sub.

Config is safe for concurrent reads. The wrapped map must not be modified
after creation.
*/
package config
