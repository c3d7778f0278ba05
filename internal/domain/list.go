package domain

import (
	"bytes"
	"encoding/json"
)

// ListState tells apart an absent list column from a corrupt one.
type ListState int

const (
	ListOK ListState = iota
	ListAbsent
	ListCorrupt
)

func (s ListState) String() string {
	switch s {
	case ListOK:
		return "ok"
	case ListAbsent:
		return "absent"
	default:
		return "corrupt"
	}
}

// DecodeStringList decodes a stored JSON list column. Absent and corrupt values
// both yield an empty list; the state lets callers log corruption.
// Lists double encoded as a JSON string are unwrapped once.
func DecodeStringList(raw []byte) ([]string, ListState) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, ListAbsent
	}

	var items []string
	if err := json.Unmarshal(trimmed, &items); err == nil {
		if items == nil {
			items = []string{}
		}
		return items, ListOK
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err == nil {
		if inner == "" {
			return []string{}, ListAbsent
		}
		if err := json.Unmarshal([]byte(inner), &items); err == nil && items != nil {
			return items, ListOK
		}
	}
	return []string{}, ListCorrupt
}

// EncodeStringList is the inverse of DecodeStringList. A nil list encodes as [].
func EncodeStringList(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return b
}
