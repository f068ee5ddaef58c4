package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// IgnoreEntry is either a numeric chat id or a chat title/handle.
type IgnoreEntry struct {
	ID      int64
	Name    string
	Numeric bool
}

func ParseIgnoreEntry(raw string) IgnoreEntry {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IgnoreEntry{ID: id, Numeric: true}
	}
	return IgnoreEntry{Name: raw}
}

func (e *IgnoreEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("ignore_groups entry at line %d must be a number or a string", node.Line)
	}
	*e = ParseIgnoreEntry(node.Value)
	return nil
}

func (e IgnoreEntry) String() string {
	if e.Numeric {
		return strconv.FormatInt(e.ID, 10)
	}
	return e.Name
}

type IgnoreList []IgnoreEntry

// ParseIgnoreList parses a comma separated list; numeric items become ids.
func ParseIgnoreList(raw string) IgnoreList {
	var out IgnoreList
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		out = append(out, ParseIgnoreEntry(item))
	}
	return out
}

// Matches tries the id first, then the title and handle.
func (l IgnoreList) Matches(id int64, title, handle string) bool {
	for _, e := range l {
		if e.Numeric && e.ID == id {
			return true
		}
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	title = strings.TrimSpace(title)
	for _, e := range l {
		if e.Numeric || e.Name == "" {
			continue
		}
		if title != "" && e.Name == title {
			return true
		}
		if handle != "" && strings.EqualFold(strings.TrimPrefix(e.Name, "@"), handle) {
			return true
		}
	}
	return false
}
