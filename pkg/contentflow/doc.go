/*
Package contentflow runs add-on pipelines: activators fire events,
producers react concurrently, mergers combine the items of one cycle and
renderers deliver the result.

# Overview

A Coordinator owns one event bus, one elastic worker pool and one activator
runtime. Components are added with their declared identities:

	c := contentflow.New(contentflow.WithLogger(logger))
	defer c.Close(ctx)

	c.AddRenderer(screen, contentflow.RendererRegistration{Inputs: []string{"total"}})
	c.AddMerger(sum, contentflow.MergerRegistration{Inputs: []string{"value"}})
	c.AddProducer(p1, contentflow.ProducerRegistration{
	    Events: []event.ID{"tick"},
	    Items:  []string{"value"},
	})
	c.AddActivator(activator.NewTicker("clock", "tick", time.Second),
	    contentflow.ActivatorRegistration{Events: []event.ID{"tick"}})

Each add or remove is a single update of the subscription graph; a firing
never sees a half-registered component.

# Cycles

Every accepted firing opens a cycle. The cycle fixes, from the graph at
fire time, which producers feed which mergers and which mergers feed which
renderers:

  - a merger takes part if some subscribed producer declares one of its inputs
  - a renderer takes part if some participating merger is one of its inputs

A merger runs once all of its expected producers are terminal, or when its
deadline passes, with the items that arrived. Items are sorted by item id
then producer id, so the result does not depend on arrival order. A merger
that received nothing is not called.

A renderer runs once all of its participating mergers are terminal, with
the merged items that exist sorted by merger id. If none exist the render
is skipped and logged.

# Failures

Producer, merger and renderer failures are isolated. The failing producer's
HandleError hook runs exactly once, the item is absent, and the failure is
reported to the configured journal.Reporter. Only an invalid event id or an
overlapping firing of the same event fail synchronously.

# Removal

Removing a component stops its future work. Tasks already running finish;
results of removed components are discarded.

# Manifests

Apply builds components from a Manifest using a Catalog of factories, and
Unload removes everything one add-on contributed:

	m, err := contentflow.LoadManifest("addons.yaml")
	...
	err = c.Apply(ctx, m, catalog)
*/
package contentflow
