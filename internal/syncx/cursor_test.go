package syncx

import "testing"

func TestRFC3339(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{
			name: "normal timestamp",
			ms:   1730635200000,
			want: "2024-11-03T12:00:00Z",
		},
		{
			name: "epoch",
			ms:   0,
			want: "1970-01-01T00:00:00Z",
		},
		{
			name: "with milliseconds",
			ms:   1730635200123,
			want: "2024-11-03T12:00:00.123Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RFC3339(tt.ms)
			if got != tt.want {
				t.Errorf("RFC3339() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNowMs(t *testing.T) {
	before := NowMs()
	after := NowMs()

	if after < before {
		t.Error("NowMs() went backwards in time")
	}
	if after-before > 1000 {
		t.Errorf("NowMs() took more than 1 second between calls: %d ms", after-before)
	}
}

func TestEnsureMonotonicTimestamp(t *testing.T) {
	// Previous timestamp far in the past: now should win.
	now := NowMs()
	got := EnsureMonotonicTimestamp(now - 10_000)
	if got < now {
		t.Errorf("EnsureMonotonicTimestamp() = %d, want >= %d", got, now)
	}

	// Previous timestamp far in the future: must still strictly advance.
	future := now + 1_000_000
	got = EnsureMonotonicTimestamp(future)
	if got <= future {
		t.Errorf("EnsureMonotonicTimestamp() = %d, want > %d", got, future)
	}
}
