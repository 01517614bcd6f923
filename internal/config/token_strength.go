package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

const weakKeyScoreThreshold = 3

// IsWeakKey returns whether the shared API key is considered weak.
// Empty key is handled by auth mode (disabled), so this function treats it as not weak.
func IsWeakKey(key string) bool {
	if key == "" {
		return false
	}
	result := zxcvbn.PasswordStrength(key, nil)
	return result.Score < weakKeyScoreThreshold
}
