// Package plugins provides the agent toolbox: the built-in tools, the
// workspace sandbox, and the registry of forged script plugins.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudwego/eino/schema"
	"github.com/tailscale/hujson"
)

// PluginManifest describes a plugin's metadata and tools.
type PluginManifest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Provider    string     `json:"provider"` // "native" or "script"
	Entrypoint  string     `json:"entrypoint,omitempty"`
	Tools       []ToolSpec `json:"tools"`
}

// ToolSpec describes a single tool interface exposed by a plugin.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"` // "string", "number", "boolean", "integer", "array", "object"
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// LoadManifest reads and parses a JSONC manifest file.
func LoadManifest(path string) (*PluginManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	var m PluginManifest
	if err := json.Unmarshal(std, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: name is required", path)
	}
	if len(m.Tools) == 0 {
		return nil, fmt.Errorf("manifest %s: at least one tool is required", path)
	}
	for i := range m.Tools {
		if m.Tools[i].Name == "" {
			if len(m.Tools) != 1 {
				return nil, fmt.Errorf("manifest %s: tool at index %d must have a name", path, i)
			}
			m.Tools[i].Name = m.Name
		}
	}
	return &m, nil
}

// SaveManifest writes a manifest as plain JSON (valid JSONC).
func SaveManifest(path string, m *PluginManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// toolSpecToToolInfo converts a ToolSpec to an eino schema.ToolInfo.
func toolSpecToToolInfo(spec *ToolSpec) *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: spec.Name,
		Desc: spec.Description,
	}

	if len(spec.Parameters) > 0 {
		params := make(map[string]*schema.ParameterInfo, len(spec.Parameters))
		for name, p := range spec.Parameters {
			params[name] = &schema.ParameterInfo{
				Type:     paramTypeToDataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
				Enum:     p.Enum,
			}
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

// paramTypeToDataType maps string type names to eino DataType constants.
func paramTypeToDataType(t string) schema.DataType {
	switch t {
	case "string":
		return schema.String
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
