package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		path string
		code string
		msg  string
	}{
		{"field not allowed", "service.mode", "unknown_field", "Field mode is not allowed"},
		{"incomplete value string", "sensors.0.name", "missing_required", "Field name is required and must be non-empty"},
		{"incomplete value int", "sensors.0.id", "missing_required", "Field id is required"},
		{"conflicting values \"xml\" and \"json\"", "service.format", "conflicting_values", "Conflicting values for format"},
		{"something odd", "version", "validation_error", "something odd"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			code, msg := classify(tc.raw, tc.path, schema)
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.msg, msg)
		})
	}
}
