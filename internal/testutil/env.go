// Package testutil has helpers shared by this module's own tests.
package testutil

import (
	"fmt"
	"os"
	"testing"
)

// CheckEnv returns the value of key, or a skip message if it is unset.
func CheckEnv(key string) (string, string, bool) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Sprintf("%s is not set, skipping", key), false
	}
	return v, "", true
}

// RequireEnv returns the value of key or skips the test.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v, msg, ok := CheckEnv(key)
	if !ok {
		t.Skip(msg)
	}
	return v
}
