package resource

import "github.com/go-gum/unpack/variant"

// Plain converts the container into maps and slices of plain go values, ready to be
// handed to a generic encoder.
func (c *Container) Plain() map[string]any {
	external := make([]any, 0, len(c.External))
	for _, ext := range c.External {
		entry := map[string]any{
			"type": ext.Type,
			"path": ext.Path,
		}

		if ext.HasUID {
			entry["uid"] = ext.UID
		}

		external = append(external, entry)
	}

	internal := make([]any, 0, len(c.Internal))
	for _, res := range c.Internal {
		props := make(map[string]any, len(res.Properties))
		for _, prop := range res.Properties {
			props[prop.Name] = variant.Plain(prop.Value)
		}

		internal = append(internal, map[string]any{
			"name":       res.Name,
			"type":       res.Type,
			"properties": props,
		})
	}

	out := map[string]any{
		"type":           c.Type,
		"version":        c.Version[:],
		"schema_version": c.SchemaVersion,
		"real64":         c.Real64,
		"compressed":     c.Compressed,
		"external":       external,
		"resources":      internal,
	}

	if c.HasUID {
		out["uid"] = c.UID
	}

	if c.Flags.Has(FlagHasScriptClass) {
		out["script_class"] = c.ScriptClass
	}

	return out
}
