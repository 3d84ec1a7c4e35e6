package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]interface{}
		want map[string]interface{}
	}{
		{
			name: "nested",
			in: map[string]interface{}{
				"a": map[string]interface{}{
					"b": 1,
					"c": map[string]interface{}{"d": 2},
				},
			},
			want: map[string]interface{}{"a_b": 1, "a_c_d": 2},
		},
		{
			name: "already flat",
			in:   map[string]interface{}{"state": "online", "vin": "X"},
			want: map[string]interface{}{"state": "online", "vin": "X"},
		},
		{
			name: "lists are leaves",
			in: map[string]interface{}{
				"charge_state": map[string]interface{}{
					"scheduled": []interface{}{map[string]interface{}{"id": 1}},
				},
			},
			want: map[string]interface{}{
				"charge_state_scheduled": []interface{}{map[string]interface{}{"id": 1}},
			},
		},
		{
			name: "null leaf kept",
			in:   map[string]interface{}{"drive_state": map[string]interface{}{"shift_state": nil}},
			want: map[string]interface{}{"drive_state_shift_state": nil},
		},
		{
			name: "empty nested map",
			in:   map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{}}, "c": true},
			want: map[string]interface{}{"c": true},
		},
		{
			name: "empty",
			in:   nil,
			want: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

func TestFlattenDoesNotMutate(t *testing.T) {
	in := map[string]interface{}{
		"vehicle_state": map[string]interface{}{"locked": true},
		"list":          []interface{}{1, 2},
	}
	Flatten(in)

	assert.Equal(t, map[string]interface{}{
		"vehicle_state": map[string]interface{}{"locked": true},
		"list":          []interface{}{1, 2},
	}, in)
}

func TestFlattenIdempotent(t *testing.T) {
	once := Flatten(map[string]interface{}{
		"a": map[string]interface{}{"b": "x"},
		"l": []interface{}{"y"},
	})
	assert.Equal(t, once, Flatten(once))
}
