package processor

import "testing"

func TestIsNoise(t *testing.T) {
	filters := []string{"->8.8.8.8:53", "->1.1.1.1:53"}

	noisy := "... 10.0.0.1:5000->8.8.8.8:53, ..."
	if !isNoise(noisy, filters) {
		t.Fatalf("expected %q to be flagged as noise", noisy)
	}

	clean := "... 10.0.0.1:5000->93.184.216.34:443, ..."
	if isNoise(clean, filters) {
		t.Fatalf("expected %q to survive filtering", clean)
	}
}

func TestIsNoiseEmptyFilterList(t *testing.T) {
	if isNoise("anything at all", nil) {
		t.Fatal("no filters configured should never flag noise")
	}
}
