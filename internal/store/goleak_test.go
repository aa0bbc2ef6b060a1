package store

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures no goroutines leak in any test in the store package.
// Container readers and swappers are designed for lock-free concurrent
// access, so a leaked goroutine here would point at a real defect.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
