package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeEncryptionKey supports both hex and base64 encoded AES keys.
func DecodeEncryptionKey(raw string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	if b, err := hex.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, nil
	}
	return nil, fmt.Errorf("key must be hex or base64 encoded 16/24/32-byte value")
}

// EncryptionKeys decodes EncryptionKey, primary key first. Returns nil when unset.
func (c *Config) EncryptionKeys() ([][]byte, error) {
	if c == nil || strings.TrimSpace(c.EncryptionKey) == "" {
		return nil, nil
	}
	parts := strings.Split(c.EncryptionKey, ",")
	result := make([][]byte, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, err := DecodeEncryptionKey(part)
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	return result, nil
}

func validAESKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// EncryptionProviderNames resolves EncryptionProviders to an ordered provider list.
func (c *Config) EncryptionProviderNames() []string {
	raw := strings.TrimSpace(c.EncryptionProviders)
	if raw == "" {
		if strings.TrimSpace(c.EncryptionKey) != "" {
			return []string{"dek", "plain"}
		}
		return []string{"plain"}
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
