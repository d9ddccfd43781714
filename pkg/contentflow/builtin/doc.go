// Package builtin provides ready-made components for manifests.
//
// Register adds these kinds to a catalog:
//
//	activators  ticker    fires events[0] every config.interval, config.limit times (0 = forever);
//	                      a config.retry section (attempts, backoff, max_backoff) waits out overlaps
//	producers   constant  returns config.value
//	            clock     returns the firing time formatted with config.layout (RFC 3339 default)
//	mergers     sum       adds numeric payloads
//	            join      joins payloads with config.separator (default ", ")
//	renderers   writer    writes one line per cycle to the catalog's output
//	            log       logs merged payloads at info level
//
// Producers declare one item; the produced item is the first entry of items.
package builtin
