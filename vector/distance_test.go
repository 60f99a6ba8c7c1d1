package vector

import "testing"

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{1, 0}

	// Orthogonal vectors -> similarity 0
	if sim, err := CosineSimilarity(a, b); err != nil || sim != 0 {
		t.Fatalf("CosineSimilarity(a,b) = %v, %v; want 0, nil", sim, err)
	}

	// Identical vectors -> similarity 1
	if sim, err := CosineSimilarity(a, c); err != nil || sim != 1 {
		t.Fatalf("CosineSimilarity(a,c) = %v, %v; want 1, nil", sim, err)
	}

	if _, err := CosineSimilarity(a, []float32{0, 0}); err == nil {
		t.Fatalf("CosineSimilarity with zero vector succeeded")
	}
}

func TestL2Distance(t *testing.T) {
	testCases := []struct {
		description string
		a, b        []float32
		want        float64
	}{
		{description: "3-4-5", a: []float32{0, 0}, b: []float32{3, 4}, want: 5},
		{description: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{description: "unit", a: []float32{0, 0, 0}, b: []float32{0, 0, 1}, want: 1},
	}
	for _, tc := range testCases {
		d, err := L2Distance(tc.a, tc.b)
		if err != nil {
			t.Fatalf("%s: L2Distance failed: %v", tc.description, err)
		}
		if d != tc.want {
			t.Fatalf("%s: L2Distance = %v, want %v", tc.description, d, tc.want)
		}
	}
	if _, err := L2Distance([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatalf("L2Distance with mismatched dims succeeded")
	}
}
