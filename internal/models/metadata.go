package models

import "sort"

// Metadata is the opaque tag and key/value blob attached to a snapshot.
// The snapshot engine stores and returns it but never interprets it.
type Metadata struct {
	Tags   []string          `json:"tags,omitempty"`
	Custom map[string]string `json:"custom,omitempty"`
}

// HasTag checks if the metadata carries tag
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds tag and reports whether it was new
func (m *Metadata) AddTag(tag string) bool {
	if m.HasTag(tag) {
		return false
	}
	m.Tags = append(m.Tags, tag)
	return true
}

// RemoveTag removes tag and reports whether it was present
func (m *Metadata) RemoveTag(tag string) bool {
	for i, t := range m.Tags {
		if t == tag {
			m.Tags = append(m.Tags[:i], m.Tags[i+1:]...)
			return true
		}
	}
	return false
}

// Set stores a custom key/value pair
func (m *Metadata) Set(key, value string) {
	if m.Custom == nil {
		m.Custom = make(map[string]string)
	}
	m.Custom[key] = value
}

// Unset removes a custom key and reports whether it existed
func (m *Metadata) Unset(key string) bool {
	if _, ok := m.Custom[key]; !ok {
		return false
	}
	delete(m.Custom, key)
	return true
}

// Keys returns the custom keys in sorted order
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.Custom))
	for k := range m.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether there is nothing worth persisting
func (m *Metadata) IsEmpty() bool {
	return len(m.Tags) == 0 && len(m.Custom) == 0
}
