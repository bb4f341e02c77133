package job

import "testing"

func TestBandwidthTracker_RecordAndSamples(t *testing.T) {
	bw := NewBandwidthTracker(3)
	bw.Record(1)
	bw.Record(2)
	bw.Record(3)
	bw.Record(4)

	got := bw.Samples()
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len(Samples()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Samples()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBandwidthTracker_SamplesIsACopy(t *testing.T) {
	bw := NewBandwidthTracker(10)
	bw.Record(5)

	got := bw.Samples()
	got[0] = 999

	if s := bw.Samples(); s[0] != 5 {
		t.Errorf("mutating the returned slice leaked into the tracker: got %v", s[0])
	}
}

func TestBandwidthTracker_DefaultCapWhenNonPositive(t *testing.T) {
	bw := NewBandwidthTracker(0)
	for i := 0; i < 15; i++ {
		bw.Record(float64(i))
	}
	if len(bw.Samples()) != 10 {
		t.Errorf("len(Samples()) = %d, want default cap 10", len(bw.Samples()))
	}
}
