package statistic

import (
	"sort"
	"strings"
)

// Tag is a key/value label attached to a monitor.
type Tag struct {
	Key   string
	Value string
}

func (t Tag) String() string {
	return t.Key + "=" + t.Value
}

// MonitorConfig identifies a monitor by name and tags. It is immutable: the
// With* methods return modified copies. Tags are kept sorted by key, and a
// later tag replaces an earlier one with the same key.
type MonitorConfig struct {
	name string
	tags []Tag
}

func NewMonitorConfig(name string, tags ...Tag) MonitorConfig {
	return MonitorConfig{name: name}.WithTags(tags...)
}

func (c MonitorConfig) Name() string {
	return c.name
}

// Tags returns a copy of the sorted tag list.
func (c MonitorConfig) Tags() []Tag {
	tags := make([]Tag, len(c.tags))
	copy(tags, c.tags)
	return tags
}

// TagMap returns the tags as a map, which is the shape most exporters need.
func (c MonitorConfig) TagMap() map[string]string {
	m := make(map[string]string, len(c.tags))
	for _, t := range c.tags {
		m[t.Key] = t.Value
	}
	return m
}

// Tag returns the value for key and whether it was present.
func (c MonitorConfig) Tag(key string) (string, bool) {
	i := sort.Search(len(c.tags), func(i int) bool { return c.tags[i].Key >= key })
	if i < len(c.tags) && c.tags[i].Key == key {
		return c.tags[i].Value, true
	}
	return "", false
}

func (c MonitorConfig) WithAdditionalTag(key, value string) MonitorConfig {
	return c.WithTags(Tag{Key: key, Value: value})
}

func (c MonitorConfig) WithTags(tags ...Tag) MonitorConfig {
	merged := make(map[string]string, len(c.tags)+len(tags))
	for _, t := range c.tags {
		merged[t.Key] = t.Value
	}
	for _, t := range tags {
		merged[t.Key] = t.Value
	}

	out := MonitorConfig{name: c.name, tags: make([]Tag, 0, len(merged))}
	for k, v := range merged {
		out.tags = append(out.tags, Tag{Key: k, Value: v})
	}
	sort.Slice(out.tags, func(i, j int) bool { return out.tags[i].Key < out.tags[j].Key })
	return out
}

func (c MonitorConfig) Equal(other MonitorConfig) bool {
	if c.name != other.name || len(c.tags) != len(other.tags) {
		return false
	}
	for i := range c.tags {
		if c.tags[i] != other.tags[i] {
			return false
		}
	}
	return true
}

// idEscaper backslash-escapes the characters ID uses as separators.
var idEscaper = strings.NewReplacer(`\`, `\\`, `{`, `\{`, `}`, `\}`, `,`, `\,`, `=`, `\=`)

// ID is a stable string form of the config, e.g. "latency{method=GET,unit=MILLISECONDS}".
// Separators inside the name, keys or values are escaped with a backslash, so
// two configs share an ID only when they are Equal.
func (c MonitorConfig) ID() string {
	var b strings.Builder
	b.WriteString(idEscaper.Replace(c.name))
	b.WriteByte('{')
	for i, t := range c.tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(idEscaper.Replace(t.Key))
		b.WriteByte('=')
		b.WriteString(idEscaper.Replace(t.Value))
	}
	b.WriteByte('}')
	return b.String()
}

func (c MonitorConfig) String() string {
	return c.ID()
}
