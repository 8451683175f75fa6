package saturation

import "testing"

func TestRetryAfterMultiplier(t *testing.T) {
	// Guards the pinned Open Question resolution: retry_after must stay a
	// fixed 5x the drain interval regardless of future refactors.
	if retryAfterMultiplier != 5 {
		t.Fatalf("retryAfterMultiplier = %d, want 5", retryAfterMultiplier)
	}
}
