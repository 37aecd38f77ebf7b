package slides

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"4 min", 240},
		{"30 sec", 30},
		{"1 min", 60},
		{"2 MIN", 120},
		{"5 Minutes", 300},
		{"45", 45},
		{"90 seconds", 90},
		{"1.5 min", 60},
		{"about 3min", 180},
		{"soon", DefaultDurationSeconds},
		{"", DefaultDurationSeconds},
		{"min", DefaultDurationSeconds},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.in))
		})
	}
}

func TestDurationHint_UnmarshalJSON(t *testing.T) {
	var s struct {
		A DurationHint `json:"a"`
		B DurationHint `json:"b"`
		C DurationHint `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2 min","b":45,"c":null}`), &s))

	assert.Equal(t, DurationHint("2 min"), s.A)
	assert.Equal(t, 120, s.A.Seconds())
	assert.Equal(t, DurationHint("45"), s.B)
	assert.Equal(t, 45, s.B.Seconds())
	assert.Equal(t, DefaultDurationSeconds, s.C.Seconds())

	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &s))
}

func TestContent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Content
	}{
		{"string", `"plain text"`, Content{Description: "plain text"}},
		{"list", `["a","b"]`, Content{Bullets: []string{"a", "b"}}},
		{"object", `{"steps":["one"],"description":"d"}`, Content{Steps: []string{"one"}, Description: "d"}},
		{"null", `null`, Content{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Content
			require.NoError(t, json.Unmarshal([]byte(tt.in), &c))
			assert.Equal(t, tt.want, c)
		})
	}

	var c Content
	assert.Error(t, json.Unmarshal([]byte(`42`), &c))
}

func TestDeck_Validate(t *testing.T) {
	ok := Deck{Slides: []Slide{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Deck{}.Validate())
	assert.Error(t, Deck{Slides: []Slide{{ID: 1, Title: " "}}}.Validate())
	assert.Error(t, Deck{Slides: []Slide{{ID: 1, Title: "A"}, {ID: 1, Title: "B"}}}.Validate())
	assert.NoError(t, Deck{Slides: []Slide{{ID: 1, Title: "A"}, {ID: 5, Title: "B"}}}.Validate())
}

func TestDeck_ValidateOrder(t *testing.T) {
	err := Deck{Slides: []Slide{{ID: 1, Title: "A"}, {ID: 3, Title: "C"}, {ID: 2, Title: "B"}}}.Validate()
	assert.ErrorContains(t, err, "ids must increase")

	err = Deck{Slides: []Slide{{ID: 2, Title: "A"}, {ID: 3, Title: "B"}, {ID: 2, Title: "C"}}}.Validate()
	assert.ErrorContains(t, err, "ids must increase")
}
