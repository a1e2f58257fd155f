// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind ShapeKind
		want     string
		wantOK   bool
	}{
		{
			name:     "direct message",
			body:     `{"message":"hello"}`,
			wantKind: ShapeMessage,
			want:     "hello",
			wantOK:   true,
		},
		{
			name:     "message wins over variables",
			body:     `{"message":"direct","variables":[{"key":"message","value":"nested"}]}`,
			wantKind: ShapeMessage,
			want:     "direct",
			wantOK:   true,
		},
		{
			name:     "variables array",
			body:     `{"variables":[{"key":"other","value":"x"},{"key":"message","value":"nested"}]}`,
			wantKind: ShapeVariables,
			want:     "nested",
			wantOK:   true,
		},
		{
			name:   "variables without message entry",
			body:   `{"variables":[{"key":"other","value":"x"}]}`,
			wantOK: false,
		},
		{
			name:     "records pick latest regardless of order",
			body:     `[{"Timestamp":"2026-03-01T10:00:00Z","Content":"middle"},{"Timestamp":"2026-03-01T12:00:00Z","Content":"latest"},{"Timestamp":"2026-03-01T08:00:00Z","Content":"earliest"}]`,
			wantKind: ShapeRecords,
			want:     "latest",
			wantOK:   true,
		},
		{
			name:     "records latest first",
			body:     `[{"Timestamp":"2026-03-01T12:00:00Z","Content":"latest"},{"Timestamp":"2026-03-01T08:00:00Z","Content":"earliest"},{"Timestamp":"2026-03-01T10:00:00Z","Content":"middle"}]`,
			wantKind: ShapeRecords,
			want:     "latest",
			wantOK:   true,
		},
		{
			name:     "records lowercase keys",
			body:     `[{"timestamp":"2026-03-01T08:00:00Z","content":"old"},{"timestamp":"2026-03-01T09:00:00Z","content":"new"}]`,
			wantKind: ShapeRecords,
			want:     "new",
			wantOK:   true,
		},
		{
			name:     "records mixed casing",
			body:     `[{"Timestamp":"2026-03-01T09:00:00Z","Content":"upper"},{"timestamp":"2026-03-01T10:00:00Z","content":"lower"}]`,
			wantKind: ShapeRecords,
			want:     "lower",
			wantOK:   true,
		},
		{
			name:     "records with offsets compare as instants",
			body:     `[{"Timestamp":"2026-03-01T10:00:00+02:00","Content":"eight utc"},{"Timestamp":"2026-03-01T09:00:00Z","Content":"nine utc"}]`,
			wantKind: ShapeRecords,
			want:     "nine utc",
			wantOK:   true,
		},
		{
			name:     "records with free-form stamps compare as strings",
			body:     `[{"Timestamp":"2026-03-01 10:00","Content":"b"},{"Timestamp":"2026-03-01 09:00","Content":"a"}]`,
			wantKind: ShapeRecords,
			want:     "b",
			wantOK:   true,
		},
		{
			name:   "empty array",
			body:   `[]`,
			wantOK: false,
		},
		{
			name:   "records without content",
			body:   `[{"Timestamp":"2026-03-01T10:00:00Z","Role":"user"}]`,
			wantOK: false,
		},
		{
			name:   "latest record without content",
			body:   `[{"Timestamp":"2026-03-01T12:00:00Z","Content":"old"},{"Timestamp":"2026-03-01T12:05:00Z","Id":"x"}]`,
			wantOK: false,
		},
		{
			name:     "older record without content is ignored",
			body:     `[{"Timestamp":"2026-03-01T12:00:00Z","Id":"x"},{"Timestamp":"2026-03-01T12:05:00Z","Content":"new"}]`,
			wantKind: ShapeRecords,
			want:     "new",
			wantOK:   true,
		},
		{
			name:   "null message",
			body:   `{"message":null}`,
			wantOK: false,
		},
		{
			name:   "not json",
			body:   `<html>gateway error</html>`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, got, ok := DecodeResponse([]byte(tt.body))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, ShapeUnknown, kind)
				return
			}
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShapeKindString(t *testing.T) {
	assert.Equal(t, "message", ShapeMessage.String())
	assert.Equal(t, "variables", ShapeVariables.String())
	assert.Equal(t, "records", ShapeRecords.String())
	assert.Equal(t, "unknown", ShapeUnknown.String())
}
