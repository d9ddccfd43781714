// Package registry provides a thread-safe set of named values.
//
// The coordinator's component catalog keeps one Registry per component
// kind, mapping the kind names used in manifests to factories:
//
//	producers := registry.New[ProducerFactory]("producer")
//	producers.MustRegister("constant", newConstant)
//
//	factory, err := producers.Get("constant")
//	if errors.Is(err, registry.ErrNotFound) {
//	    // manifest names a kind nobody registered
//	}
//
// Names are unique; registering a taken name fails with ErrDuplicate.
// Names returns entries in sorted order.
package registry
