package compiler

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// OrderedMap — map, сохраняющий порядок вставки при сериализации в JSON и YAML.
//
// Используется для документов, где порядок ключей значим:
// задания в порядке стадий, секции верхнего уровня workflow.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap создаёт пустой OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// Set добавляет или заменяет значение. Повторный Set не меняет позицию ключа.
func (m *OrderedMap) Set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get возвращает значение по ключу.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has проверяет наличие ключа.
func (m *OrderedMap) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys возвращает ключи в порядке вставки.
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len возвращает количество ключей.
func (m *OrderedMap) Len() int {
	return len(m.keys)
}

// MarshalJSON реализует json.Marshaler.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML реализует yaml.Marshaler.
func (m *OrderedMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valNode := &yaml.Node{}
		if err := valNode.Encode(m.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}
