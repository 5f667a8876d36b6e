package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const apiKeyPrefix = "dk_"

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}
