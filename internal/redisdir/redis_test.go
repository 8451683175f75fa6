package redisdir

import "testing"

func TestAtoiSafe(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"0":    0,
		"42":   42,
		"007":  7,
		"abc":  0,
		"12a":  0,
	}
	for in, want := range cases {
		if got := atoiSafe(in); got != want {
			t.Errorf("atoiSafe(%q) = %d, want %d", in, got, want)
		}
	}
}
