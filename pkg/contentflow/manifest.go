package contentflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/contentflow/pkg/contentflow/config"
	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// Manifest lists the components of every loaded add-on.
type Manifest struct {
	AddOns []AddOn `yaml:"addons" json:"addons"`
}

// AddOn is one add-on's contribution to the pipeline.
type AddOn struct {
	Name       string          `yaml:"name" json:"name"`
	Activators []ComponentSpec `yaml:"activators" json:"activators"`
	Producers  []ComponentSpec `yaml:"producers" json:"producers"`
	Mergers    []ComponentSpec `yaml:"mergers" json:"mergers"`
	Renderers  []ComponentSpec `yaml:"renderers" json:"renderers"`
}

// ComponentSpec names a component, the catalog kind that builds it, and
// its declared identities.
type ComponentSpec struct {
	ID   string `yaml:"id" json:"id"`
	Kind string `yaml:"kind" json:"kind"`

	// Events is fired (activators) or subscribed to (producers).
	Events []string `yaml:"events" json:"events"`

	// Items a producer can produce.
	Items []string `yaml:"items" json:"items"`

	// Inputs are item ids (mergers) or merger ids (renderers).
	Inputs []string `yaml:"inputs" json:"inputs"`

	// Timeout is the producer timeout or merger deadline.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Config is passed to the factory.
	Config map[string]any `yaml:"config" json:"config"`
}

// Settings returns the component's config section.
func (s ComponentSpec) Settings() config.Config {
	return config.New(s.Config)
}

func (s ComponentSpec) eventIDs() []event.ID {
	ids := make([]event.ID, len(s.Events))
	for i, ev := range s.Events {
		ids[i] = event.ID(ev)
	}
	return ids
}

// ParseManifest decodes a YAML manifest. JSON is accepted as YAML.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks names and ids. Component ids must be unique per kind of
// component across the whole manifest; declared identities are checked
// when the components are added.
func (m Manifest) Validate() error {
	var errs []error
	names := make(map[string]bool)
	seen := map[string]map[string]bool{
		"activator": {}, "producer": {}, "merger": {}, "renderer": {},
	}

	check := func(addOn, role string, specs []ComponentSpec) {
		for i, s := range specs {
			switch {
			case s.ID == "":
				errs = append(errs, fmt.Errorf("addon %s: %s #%d: missing id", addOn, role, i))
			case s.Kind == "":
				errs = append(errs, fmt.Errorf("addon %s: %s %s: missing kind", addOn, role, s.ID))
			case seen[role][s.ID]:
				errs = append(errs, fmt.Errorf("addon %s: %s %s: duplicate id", addOn, role, s.ID))
			}
			seen[role][s.ID] = true
		}
	}

	for i, a := range m.AddOns {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("addon #%d: missing name", i))
			continue
		}
		if names[a.Name] {
			errs = append(errs, fmt.Errorf("addon %s: duplicate name", a.Name))
			continue
		}
		names[a.Name] = true

		check(a.Name, "activator", a.Activators)
		check(a.Name, "producer", a.Producers)
		check(a.Name, "merger", a.Mergers)
		check(a.Name, "renderer", a.Renderers)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid manifest: %w", errors.Join(errs...))
	}
	return nil
}
