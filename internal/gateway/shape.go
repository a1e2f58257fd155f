// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"bytes"
	"encoding/json"
	"time"
)

// ShapeKind identifies which of the gateway's response shapes a body used.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	// ShapeMessage is an object with a direct "message" string.
	ShapeMessage
	// ShapeVariables is an object whose "variables" array holds a {key: "message", value} entry.
	ShapeVariables
	// ShapeRecords is an array of timestamped records; the latest one carries the content.
	ShapeRecords
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeMessage:
		return "message"
	case ShapeVariables:
		return "variables"
	case ShapeRecords:
		return "records"
	default:
		return "unknown"
	}
}

// shapeDecoders lists the decoders in priority order. The first success wins.
var shapeDecoders = []struct {
	kind   ShapeKind
	decode func([]byte) (string, bool)
}{
	{ShapeMessage, decodeMessage},
	{ShapeVariables, decodeVariables},
	{ShapeRecords, decodeRecords},
}

// DecodeResponse extracts the single text result from a gateway body.
// It returns ShapeUnknown and false when no shape matches.
func DecodeResponse(body []byte) (ShapeKind, string, bool) {
	for _, d := range shapeDecoders {
		if text, ok := d.decode(body); ok {
			return d.kind, text, true
		}
	}
	return ShapeUnknown, "", false
}

func decodeMessage(body []byte) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	raw, ok := obj["message"]
	if !ok {
		return "", false
	}
	return rawString(raw)
}

func decodeVariables(body []byte) (string, bool) {
	var obj struct {
		Variables []struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	for _, v := range obj.Variables {
		if v.Key == "message" {
			return rawString(v.Value)
		}
	}
	return "", false
}

// decodeRecords picks the record with the latest timestamp and returns its
// content. Timestamps are compared as RFC 3339 instants when every record
// parses, otherwise as strings. A latest record without content is not a
// valid answer.
func decodeRecords(body []byte) (string, bool) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return "", false
	}

	type candidate struct {
		stamp      string
		at         time.Time
		content    string
		hasContent bool
	}
	var cands []candidate
	allParsed := true
	for _, rec := range records {
		content, hasContent := field(rec, "Content", "content")
		stamp, _ := field(rec, "Timestamp", "timestamp")
		at, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			allParsed = false
		}
		cands = append(cands, candidate{stamp: stamp, at: at, content: content, hasContent: hasContent})
	}
	if len(cands) == 0 {
		return "", false
	}

	best := cands[0]
	for _, c := range cands[1:] {
		later := c.stamp > best.stamp
		if allParsed {
			later = c.at.After(best.at)
		}
		if later {
			best = c
		}
	}
	return best.content, best.hasContent
}

// field reads the first of keys present in rec as a string.
func field(rec map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		if raw, ok := rec[k]; ok {
			if s, ok := rawString(raw); ok {
				return s, true
			}
		}
	}
	return "", false
}

// rawString decodes a JSON string. Non-string scalars and objects are
// returned as their JSON text; null is treated as absent.
func rawString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
