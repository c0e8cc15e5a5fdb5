package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Credential is an encrypted secret as stored at rest. All byte fields are base64.
// Algorithm names the cipher (and key derivation) so old records stay readable
// after the write algorithm changes.
type Credential struct {
	Algorithm  string `json:"alg"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ct"`
}

// String never prints the ciphertext.
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Credential(%s)", c.Algorithm)
}

func (c *Credential) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *Credential) Scan(value any) error {
	if value == nil {
		*c = Credential{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("Credential: expected []byte, got %T", value)
	}

	if len(b) == 0 {
		*c = Credential{}
		return nil
	}

	return json.Unmarshal(b, c)
}
