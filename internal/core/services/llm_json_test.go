package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedItem struct {
	Name string `json:"name"`
}

func TestDecodeJSONList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"bare array", `[{"name":"a"},{"name":"b"}]`, []string{"a", "b"}},
		{"prose around", "Here you go:\n[{\"name\":\"a\"}]\nEnjoy!", []string{"a"}},
		{"code fence", "```json\n[{\"name\":\"a\"}]\n```", []string{"a"}},
		{"wrapped", `{"ideas": [{"name":"x"}]}`, []string{"x"}},
		{"second key", `{"items": [{"name":"y"}]}`, []string{"y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeJSONList[namedItem](tt.raw, "ideas", "items")
			require.NoError(t, err)
			got := make([]string, len(items))
			for i := range items {
				got[i] = items[i].Name
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONList_Errors(t *testing.T) {
	_, err := decodeJSONList[namedItem]("no json here")
	assert.ErrorIs(t, err, errNoJSON)

	_, err = decodeJSONList[namedItem](`{"other": []}`, "ideas")
	assert.ErrorIs(t, err, errNoJSON)

	_, err = decodeJSONList[namedItem](`[{"name": }]`)
	assert.Error(t, err)
}
