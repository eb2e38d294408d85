package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"无围栏", `{"shots":[]}`, `{"shots":[]}`},
		{"json 围栏", "```json\n{\"shots\":[]}\n```", `{"shots":[]}`},
		{"裸围栏", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"带前后空白", "  ```json\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"只有开围栏", "```json\n{\"a\":1}", `{"a":1}`},
		{"空串", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}
