// Package compiler translates declarative RONIN queries into SQLite
// statements with positional parameters.
// This file implements the preset expander: the `for` instruction clones a
// model preset's instruction bundle, substitutes argument placeholders, and
// merges the clone into the host query.
package compiler

import (
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// expandPresets resolves the `for` instruction of a query, merging every
// named preset into the remaining instructions. Expansion runs before any
// other handler, so the merged bundle flows through the normal pipeline.
// The host instructions are never mutated; a merged copy is returned.
func (c *compileContext) expandPresets(m *Model, instructions map[string]any) (map[string]any, error) {
	forValue, ok := instructions["for"]
	if !ok {
		return instructions, nil
	}

	host := make(map[string]any, len(instructions))
	for key, value := range instructions {
		if key != "for" {
			host[key] = value
		}
	}

	entries, err := presetEntries(forValue)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		preset, ok := m.PresetBySlug(entry.slug)
		if !ok {
			return nil, errPresetNotFound(entry.slug, m.Slug)
		}

		clone, _ := deepCopy(preset.Instructions).(map[string]any)
		if clone == nil {
			continue
		}
		// Presets of presets are not expanded.
		delete(clone, "for")

		if entry.arg != nil {
			clone, _ = substituteValue(clone, cast.ToString(entry.arg)).(map[string]any)
		}

		host = mergeInstructions(host, clone)
	}

	return host, nil
}

type presetEntry struct {
	slug string
	arg  any
}

// presetEntries normalizes the two accepted `for` shapes: an ordered list of
// preset slugs (null arguments), or a mapping from slug to argument.
func presetEntries(forValue any) ([]presetEntry, error) {
	switch v := forValue.(type) {
	case []any:
		entries := make([]presetEntry, 0, len(v))
		for _, item := range v {
			slug, ok := item.(string)
			if !ok {
				return nil, errInvalidInstruction("the `for` instruction must list preset slugs, not %T", item)
			}
			entries = append(entries, presetEntry{slug: slug})
		}
		return entries, nil
	case []string:
		entries := make([]presetEntry, 0, len(v))
		for _, slug := range v {
			entries = append(entries, presetEntry{slug: slug})
		}
		return entries, nil
	case map[string]any:
		keys := maps.Keys(v)
		slices.Sort(keys)
		entries := make([]presetEntry, 0, len(keys))
		for _, slug := range keys {
			entries = append(entries, presetEntry{slug: slug, arg: v[slug]})
		}
		return entries, nil
	default:
		return nil, errInvalidInstruction("the `for` instruction must hold a list or mapping, not %T", forValue)
	}
}

// mergeInstructions merges a cloned preset bundle into the host instructions
// and returns a new bundle. Host wins on scalar collisions; array clauses
// concatenate with the preset entries first; object clauses shallow-merge
// with host keys overriding. The `with` clause keeps its preset-first order
// structurally, as an ordered conjunction.
func mergeInstructions(host, clone map[string]any) map[string]any {
	merged := make(map[string]any, len(host)+len(clone))

	for key, cloneValue := range clone {
		hostValue, collides := host[key]
		if !collides {
			merged[key] = cloneValue
			continue
		}

		if key == "with" {
			merged[key] = mergeWith(cloneValue, hostValue)
			continue
		}

		switch cv := cloneValue.(type) {
		case []any:
			if hv, ok := hostValue.([]any); ok {
				merged[key] = append(append([]any{}, cv...), hv...)
				continue
			}
		case map[string]any:
			if hv, ok := hostValue.(map[string]any); ok {
				out := make(map[string]any, len(cv)+len(hv))
				for k, v := range cv {
					out[k] = v
				}
				for k, v := range hv {
					out[k] = v
				}
				merged[key] = out
				continue
			}
		}
		merged[key] = hostValue
	}

	for key, hostValue := range host {
		if _, done := merged[key]; !done {
			merged[key] = hostValue
		}
	}

	return merged
}

// mergeWith combines two `with` filters into an ordered conjunction with the
// preset's conditions first. Field keys the host also filters on are dropped
// from the preset side, preserving the host-wins-on-collision rule.
func mergeWith(cloneValue, hostValue any) any {
	hostList := asAndGroup(hostValue)
	hostKeys := make(map[string]struct{})
	for _, entry := range hostList {
		if m, ok := entry.(map[string]any); ok {
			for key := range m {
				hostKeys[key] = struct{}{}
			}
		}
	}

	out := andGroup{}
	for _, entry := range asAndGroup(cloneValue) {
		if m, ok := entry.(map[string]any); ok {
			filtered := make(map[string]any, len(m))
			for key, value := range m {
				if _, overridden := hostKeys[key]; !overridden {
					filtered[key] = value
				}
			}
			if len(filtered) == 0 {
				continue
			}
			out = append(out, filtered)
			continue
		}
		out = append(out, entry)
	}
	out = append(out, hostList...)

	if len(out) == 1 {
		return out[0]
	}
	return out
}

func asAndGroup(v any) andGroup {
	if g, ok := v.(andGroup); ok {
		return g
	}
	return andGroup{v}
}

// deepCopy structurally copies plain instruction data. Presets contain only
// plain maps, slices, and scalars; anything else is shared as-is.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = deepCopy(entry)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = deepCopy(entry)
		}
		return out
	default:
		return v
	}
}

// substituteValue replaces the VALUE placeholder inside every string leaf of
// a cloned instruction tree with the argument's string form.
func substituteValue(value any, arg string) any {
	switch v := value.(type) {
	case string:
		return strings.ReplaceAll(v, SymbolValue, arg)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = substituteValue(entry, arg)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = substituteValue(entry, arg)
		}
		return out
	default:
		return v
	}
}
