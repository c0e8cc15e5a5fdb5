package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapability_Constants(t *testing.T) {
	tests := []struct {
		name       string
		capability Capability
		expected   string
	}{
		{"AI", CapabilityAI, "ai"},
		{"Email", CapabilityEmail, "email"},
		{"PeopleSearch", CapabilityPeopleSearch, "people_search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.capability.String() != tt.expected {
				t.Errorf("Capability = %s, want %s", tt.capability, tt.expected)
			}
			if !tt.capability.IsValid() {
				t.Errorf("Capability %s should be valid", tt.capability)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("email")
	require.NoError(t, err)
	assert.Equal(t, CapabilityEmail, c)

	_, err = ParseCapability("whatsapp")
	assert.ErrorIs(t, err, ErrInvalidCapability)
	assert.Contains(t, err.Error(), "people_search")

	_, err = ParseCapability("")
	assert.ErrorIs(t, err, ErrInvalidCapability)
}

func TestProviderConfig_HasCredential(t *testing.T) {
	p := &ProviderConfig{}
	assert.False(t, p.HasCredential())

	p.Credential = &Credential{Algorithm: "aes-gcm"}
	assert.False(t, p.HasCredential(), "empty ciphertext is not a credential")

	p.Credential.Ciphertext = "Zm9v"
	assert.True(t, p.HasCredential())
}

func TestCredential_ScanValue(t *testing.T) {
	in := &Credential{Algorithm: "aes-gcm", IV: "aXY=", Tag: "dGFn", Ciphertext: "Y3Q="}
	v, err := in.Value()
	require.NoError(t, err)

	var out Credential
	require.NoError(t, out.Scan(v))
	assert.Equal(t, *in, out)

	require.NoError(t, out.Scan(nil))
	assert.Equal(t, Credential{}, out)

	assert.Error(t, out.Scan(42))
}

func TestCredential_StringHidesCiphertext(t *testing.T) {
	c := &Credential{Algorithm: "aes-gcm", Ciphertext: "c2VjcmV0"}
	assert.Equal(t, "Credential(aes-gcm)", c.String())
	assert.NotContains(t, c.String(), "c2VjcmV0")
}

func TestJSONB_NilValueIsEmptyObject(t *testing.T) {
	var j JSONB
	v, err := j.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var scanned JSONB
	require.NoError(t, scanned.Scan([]byte(`{"from":"a@b.c"}`)))
	assert.Equal(t, "a@b.c", scanned["from"])

	raw, err := json.Marshal(scanned)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a@b.c"}`, string(raw))
}

func TestProviderConfig_Clone(t *testing.T) {
	p := &ProviderConfig{
		Kind:       "smtp",
		Config:     JSONB{"host": "mail.example.com"},
		Credential: &Credential{Algorithm: "aes-gcm", Ciphertext: "Y3Q="},
	}

	cp := p.Clone()
	cp.Config["host"] = "other.example.com"
	cp.Credential.Ciphertext = "changed"

	assert.Equal(t, "mail.example.com", p.Config["host"])
	assert.Equal(t, "Y3Q=", p.Credential.Ciphertext)

	bare := (&ProviderConfig{Kind: "openai"}).Clone()
	assert.Nil(t, bare.Config)
	assert.Nil(t, bare.Credential)
}
