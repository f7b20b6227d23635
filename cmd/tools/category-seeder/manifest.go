// cmd/tools/category-seeder/manifest.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
)

// Manifest lists the vocabulary of one or more categories.
//
//	categories:
//	  - name: fruits
//	    items:
//	      - apple
//	      - name: dragon fruit
//	        displayName: Dragon Fruit
type Manifest struct {
	Categories []CategoryEntry `yaml:"categories"`
}

type CategoryEntry struct {
	Name  string      `yaml:"name"`
	Items []ItemEntry `yaml:"items"`
}

// ItemEntry accepts either a bare name or a mapping with a display name.
type ItemEntry struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
}

func (e *ItemEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Name = node.Value
		return nil
	}
	type plain ItemEntry
	return node.Decode((*plain)(e))
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Categories) == 0 {
		return fmt.Errorf("manifest has no categories")
	}
	seenCategory := map[string]bool{}
	for i, c := range m.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if strings.Contains(name, "/") {
			return fmt.Errorf("category %q must not contain '/'", name)
		}
		if seenCategory[name] {
			return fmt.Errorf("duplicate category %q", name)
		}
		seenCategory[name] = true

		seenItem := map[models.ItemKey]bool{}
		for _, it := range c.Items {
			key := models.NewItemKey(name, it.Name)
			if err := key.Validate(); err != nil {
				return fmt.Errorf("category %q: %w", name, err)
			}
			if seenItem[key] {
				return fmt.Errorf("category %q: duplicate item %q", name, key.Name)
			}
			seenItem[key] = true
		}
	}
	return nil
}

type seedSummary struct {
	Created   int
	Updated   int
	Unchanged int
}

// seed creates missing items. Existing items only pick up an explicit display
// name; their images and collection progress are left alone.
func seed(ctx context.Context, store itemstore.Store, m *Manifest) (seedSummary, error) {
	var sum seedSummary
	for _, c := range m.Categories {
		for _, entry := range c.Items {
			key := models.NewItemKey(c.Name, entry.Name)
			display := strings.TrimSpace(entry.DisplayName)

			item, err := store.Load(ctx, key)
			switch {
			case errors.Is(err, apperrors.ErrItemNotFound):
				if display == "" {
					display = key.Name
				}
				item = &models.Item{Key: key, DisplayName: display}
				sum.Created++
			case err != nil:
				return sum, fmt.Errorf("load %s: %w", key, err)
			case display == "" || item.DisplayName == display:
				sum.Unchanged++
				continue
			default:
				item.DisplayName = display
				sum.Updated++
			}

			if err := store.Save(ctx, item); err != nil {
				return sum, fmt.Errorf("save %s: %w", key, err)
			}
		}
	}
	return sum, nil
}
