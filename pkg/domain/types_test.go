package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Port
		number  int
		valid   bool
		wantErr bool
	}{
		{name: "number", input: `{"port": 4000}`, want: "4000", number: 4000, valid: true},
		{name: "string", input: `{"port": "3000"}`, want: "3000", number: 3000, valid: true},
		{name: "null", input: `{"port": null}`, want: ""},
		{name: "empty string", input: `{"port": ""}`, want: ""},
		{name: "not numeric", input: `{"port": "abc"}`, want: "abc"},
		{name: "out of range", input: `{"port": 70000}`, want: "70000"},
		{name: "bool", input: `{"port": true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s System
			err := json.Unmarshal([]byte(tt.input), &s)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Port)

			n, ok := s.Port.Number()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.number, n)
		})
	}
}

func TestSystemDescriptor_Command(t *testing.T) {
	d := System{ID: "s1", StartCommand: "npm start", DeployCommand: "npm run deploy"}.Descriptor("a1")

	assert.Equal(t, "a1", d.ApplicationID)
	assert.Equal(t, "npm start", d.Command(CommandKindStart))
	assert.Equal(t, "npm run deploy", d.Command(CommandKindDeploy))
}
