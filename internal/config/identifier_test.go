package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProjectID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "valid generated form", id: "enclave-260823-9f3c"},
		{name: "valid minimal", id: "abc-12"},
		{name: "too short", id: "abcde", wantErr: true},
		{name: "too long", id: strings.Repeat("a", 31), wantErr: true},
		{name: "exactly thirty characters", id: strings.Repeat("a", 30)},
		{name: "starts with digit", id: "1enclave", wantErr: true},
		{name: "starts with hyphen", id: "-enclave", wantErr: true},
		{name: "uppercase rejected", id: "Enclave-demo", wantErr: true},
		{name: "underscore rejected", id: "enclave_demo", wantErr: true},
		{name: "trailing hyphen rejected", id: "enclave-demo-", wantErr: true},
		{name: "doubled hyphen rejected", id: "enclave--demo", wantErr: true},
		{name: "empty rejected", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				var formatErr *InvalidFormatError
				assert.ErrorAs(t, err, &formatErr)
				assert.Equal(t, tt.id, formatErr.ID)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerateProjectID(t *testing.T) {
	id, err := GenerateProjectID()
	require.NoError(t, err)

	assert.NoError(t, ValidateProjectID(id))
	assert.True(t, strings.HasPrefix(id, "enclave-"), id)

	other, err := GenerateProjectID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other, "random suffix must differ across generations")
}
