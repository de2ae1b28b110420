package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/silt/pkg/core"
)

// Serializer defines how a record's field map is read from and written
// to one file format.
type Serializer interface {
	// Decode parses file contents into a field map.
	Decode(data []byte) (core.Metadata, error)
	// Encode converts a field map to file contents.
	Encode(fields core.Metadata) ([]byte, error)
}

// DefaultSerializers returns the standard set of serializers, keyed by
// file extension.
func DefaultSerializers(strict bool) map[string]Serializer {
	return map[string]Serializer{
		".json": NewJSONSerializer(strict),
		".yaml": NewYAMLSerializer(strict),
		".yml":  NewYAMLSerializer(strict),
	}
}

// --- JSON Serializer ---

// JSONSerializer handles reading and writing JSON record files.
type JSONSerializer struct {
	// Strict parses numbers as json.Number to avoid precision loss on
	// large integers.
	Strict bool
}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer(strict bool) *JSONSerializer {
	return &JSONSerializer{Strict: strict}
}

func (s *JSONSerializer) Decode(data []byte) (core.Metadata, error) {
	var fields core.Metadata
	decoder := json.NewDecoder(bytes.NewReader(data))
	if s.Strict {
		decoder.UseNumber()
	}
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if fields == nil {
		fields = make(core.Metadata)
	}
	return fields, nil
}

func (s *JSONSerializer) Encode(fields core.Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// --- YAML Serializer ---

// YAMLSerializer handles reading and writing YAML record files.
type YAMLSerializer struct {
	Strict bool
}

// NewYAMLSerializer creates a new YAML serializer.
func NewYAMLSerializer(strict bool) *YAMLSerializer {
	return &YAMLSerializer{Strict: strict}
}

func (s *YAMLSerializer) Decode(data []byte) (core.Metadata, error) {
	var fields core.Metadata
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if fields == nil {
		fields = make(core.Metadata)
	}
	if s.Strict {
		fields = recursiveNormalize(fields).(core.Metadata)
	}
	return fields, nil
}

func (s *YAMLSerializer) Encode(fields core.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	// Stable key order keeps diffs (and git history) meaningful.
	node, err := sortedNode(fields)
	if err != nil {
		return nil, err
	}
	if err := encoder.Encode(node); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sortedNode builds a yaml mapping node with keys in sorted order.
func sortedNode(fields core.Metadata) (*yaml.Node, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(k); err != nil {
			return nil, err
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(fields[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// recursiveNormalize converts YAML's map[any]any shapes into string-keyed
// maps so both serializers produce the same in-memory form.
func recursiveNormalize(val any) any {
	switch v := val.(type) {
	case map[any]any:
		out := make(core.Metadata, len(v))
		for k, inner := range v {
			out[fmt.Sprintf("%v", k)] = recursiveNormalize(inner)
		}
		return out
	case map[string]any:
		out := make(core.Metadata, len(v))
		for k, inner := range v {
			out[k] = recursiveNormalize(inner)
		}
		return out
	case core.Metadata:
		out := make(core.Metadata, len(v))
		for k, inner := range v {
			out[k] = recursiveNormalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = recursiveNormalize(inner)
		}
		return out
	default:
		return val
	}
}
