package contentflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/randalmurphal/contentflow/pkg/contentflow/activator"
	"github.com/randalmurphal/contentflow/pkg/contentflow/registry"
)

// Factories build components named by a manifest.
type (
	ActivatorFactory func(spec ComponentSpec) (activator.Activator, error)
	ProducerFactory  func(spec ComponentSpec) (ContentProducer, error)
	MergerFactory    func(spec ComponentSpec) (OutputMerger, error)
	RendererFactory  func(spec ComponentSpec) (OutputRenderer, error)
)

// Catalog maps manifest kinds to factories.
type Catalog struct {
	Activators *registry.Registry[ActivatorFactory]
	Producers  *registry.Registry[ProducerFactory]
	Mergers    *registry.Registry[MergerFactory]
	Renderers  *registry.Registry[RendererFactory]
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Activators: registry.New[ActivatorFactory]("activator kind"),
		Producers:  registry.New[ProducerFactory]("producer kind"),
		Mergers:    registry.New[MergerFactory]("merger kind"),
		Renderers:  registry.New[RendererFactory]("renderer kind"),
	}
}

// Check reports every kind the manifest names that the catalog lacks.
func (cat *Catalog) Check(m Manifest) error {
	var errs []error
	for _, a := range m.AddOns {
		for _, s := range a.Activators {
			if !cat.Activators.Has(s.Kind) {
				errs = append(errs, fmt.Errorf("addon %s: activator %s: kind %q: %w", a.Name, s.ID, s.Kind, registry.ErrNotFound))
			}
		}
		for _, s := range a.Producers {
			if !cat.Producers.Has(s.Kind) {
				errs = append(errs, fmt.Errorf("addon %s: producer %s: kind %q: %w", a.Name, s.ID, s.Kind, registry.ErrNotFound))
			}
		}
		for _, s := range a.Mergers {
			if !cat.Mergers.Has(s.Kind) {
				errs = append(errs, fmt.Errorf("addon %s: merger %s: kind %q: %w", a.Name, s.ID, s.Kind, registry.ErrNotFound))
			}
		}
		for _, s := range a.Renderers {
			if !cat.Renderers.Has(s.Kind) {
				errs = append(errs, fmt.Errorf("addon %s: renderer %s: kind %q: %w", a.Name, s.ID, s.Kind, registry.ErrNotFound))
			}
		}
	}
	return errors.Join(errs...)
}

// addOnRecord is what one add-on contributed, in the order it was added.
type addOnRecord struct {
	activators []string
	producers  []string
	mergers    []string
	renderers  []string
}

func (r *addOnRecord) componentIDs() []string {
	ids := slices.Concat(r.activators, r.producers, r.mergers, r.renderers)
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Apply builds and adds every component of every add-on in m.
//
// Renderers are added first and activators last, so an activator's first
// firing finds the whole pipeline. If any add-on fails, the components it
// already added are removed again and Apply returns; add-ons applied
// before it stay loaded.
func (c *Coordinator) Apply(ctx context.Context, m Manifest, cat *Catalog) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := cat.Check(m); err != nil {
		return err
	}

	for _, a := range m.AddOns {
		if err := c.applyAddOn(ctx, a, cat); err != nil {
			return fmt.Errorf("addon %s: %w", a.Name, err)
		}
	}
	return nil
}

func (c *Coordinator) applyAddOn(ctx context.Context, a AddOn, cat *Catalog) error {
	c.mu.Lock()
	if _, ok := c.addOns[a.Name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("already loaded: %w", ErrDuplicateComponent)
	}
	rec := &addOnRecord{}
	c.addOns[a.Name] = rec
	c.mu.Unlock()

	err := c.buildAddOn(a, cat, rec)
	if err != nil {
		_ = c.unloadRecord(ctx, a.Name, rec)
	}
	return err
}

func (c *Coordinator) buildAddOn(a AddOn, cat *Catalog, rec *addOnRecord) error {
	for _, s := range a.Renderers {
		factory, err := cat.Renderers.Get(s.Kind)
		if err != nil {
			return err
		}
		r, err := buildComponent(s, factory)
		if err != nil {
			return err
		}
		if err := c.AddRenderer(r, RendererRegistration{Inputs: s.Inputs}); err != nil {
			return err
		}
		c.record(func() { rec.renderers = append(rec.renderers, r.ID()) })
	}

	for _, s := range a.Mergers {
		factory, err := cat.Mergers.Get(s.Kind)
		if err != nil {
			return err
		}
		m, err := buildComponent(s, factory)
		if err != nil {
			return err
		}
		if err := c.AddMerger(m, MergerRegistration{Inputs: s.Inputs, Timeout: s.Timeout}); err != nil {
			return err
		}
		c.record(func() { rec.mergers = append(rec.mergers, m.ID()) })
	}

	for _, s := range a.Producers {
		factory, err := cat.Producers.Get(s.Kind)
		if err != nil {
			return err
		}
		p, err := buildComponent(s, factory)
		if err != nil {
			return err
		}
		reg := ProducerRegistration{Events: s.eventIDs(), Items: s.Items, Timeout: s.Timeout}
		if err := c.AddProducer(p, reg); err != nil {
			return err
		}
		c.record(func() { rec.producers = append(rec.producers, p.ID()) })
	}

	for _, s := range a.Activators {
		factory, err := cat.Activators.Get(s.Kind)
		if err != nil {
			return err
		}
		act, err := buildComponent(s, factory)
		if err != nil {
			return err
		}
		if _, err := c.AddActivator(act, ActivatorRegistration{Events: s.eventIDs()}); err != nil {
			return err
		}
		c.record(func() { rec.activators = append(rec.activators, act.ID()) })
	}
	return nil
}

type identified interface{ ID() string }

// buildComponent runs a factory and checks the built id matches s.ID.
func buildComponent[T identified](s ComponentSpec, factory func(ComponentSpec) (T, error)) (T, error) {
	built, err := factory(s)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s %s: %w", s.Kind, s.ID, err)
	}
	if built.ID() != s.ID {
		var zero T
		return zero, fmt.Errorf("build %s %s: factory returned id %q: %w", s.Kind, s.ID, built.ID(), ErrInvalidRegistration)
	}
	return built, nil
}

func (c *Coordinator) record(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// Unload stops and removes everything an add-on contributed.
func (c *Coordinator) Unload(ctx context.Context, addOn string) error {
	c.mu.Lock()
	rec, ok := c.addOns[addOn]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("addon %s: %w", addOn, ErrUnknownComponent)
	}
	return c.unloadRecord(ctx, addOn, rec)
}

// unloadRecord removes components in reverse dependency order: activators
// first so no new firings start, renderers last.
func (c *Coordinator) unloadRecord(ctx context.Context, addOn string, rec *addOnRecord) error {
	c.mu.Lock()
	activators := slices.Clone(rec.activators)
	producers := slices.Clone(rec.producers)
	mergers := slices.Clone(rec.mergers)
	renderers := slices.Clone(rec.renderers)
	c.mu.Unlock()

	var errs []error
	for _, id := range activators {
		if err := c.RemoveActivator(ctx, id); err != nil && !errors.Is(err, ErrUnknownComponent) {
			errs = append(errs, err)
		}
	}
	for _, id := range producers {
		if err := c.RemoveProducer(id); err != nil && !errors.Is(err, ErrUnknownComponent) {
			errs = append(errs, err)
		}
	}
	for _, id := range mergers {
		if err := c.RemoveMerger(id); err != nil && !errors.Is(err, ErrUnknownComponent) {
			errs = append(errs, err)
		}
	}
	for _, id := range renderers {
		if err := c.RemoveRenderer(id); err != nil && !errors.Is(err, ErrUnknownComponent) {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	if c.addOns[addOn] == rec {
		delete(c.addOns, addOn)
	}
	c.mu.Unlock()

	return errors.Join(errs...)
}

// AddOns returns the names of loaded add-ons, sorted.
func (c *Coordinator) AddOns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.addOns))
	for name := range c.addOns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
