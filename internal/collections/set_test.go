// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package collections_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/desargues/desargues/internal/collections"
)

type hasTestCase struct {
	name             string
	set              collections.Set[string]
	testValueResults map[string]bool
}

func TestSet_NewSet(t *testing.T) {
	testCases := []struct {
		name        string
		constructed collections.Set[int]
		expected    collections.Set[int]
	}{
		{
			name:        "empty",
			constructed: collections.NewSet[int](),
			expected:    collections.Set[int]{},
		}, {
			name:        "items",
			constructed: collections.NewSet[int](1, 54, 284),
			expected:    collections.Set[int]{1: {}, 54: {}, 284: {}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if len(tc.constructed) != len(tc.expected) {
				t.Fatal("Set length mismatch")
			}

			for k := range tc.expected {
				if _, ok := tc.constructed[k]; !ok {
					t.Fatalf("Expected to find key %v in constructed set", k)
				}
			}
		})
	}
}

func TestSet_has(t *testing.T) {
	testCases := []hasTestCase{
		{
			name: "string",
			set: collections.Set[string]{
				"a": {},
				"b": {},
				"c": {},
			},
			testValueResults: map[string]bool{
				"a": true,
				"b": true,
				"c": true,
				"d": false,
				"e": false,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			for value, has := range testCase.testValueResults {
				t.Run(value, func(t *testing.T) {
					if has {
						if !testCase.set.Has(value) {
							t.Fatalf("Set does not have expected value of %s", value)
						}
					} else {
						if testCase.set.Has(value) {
							t.Fatalf("Set has unexpected value of %s", value)
						}
					}
				})
			}
		})
	}
}

func TestSet_addRemove(t *testing.T) {
	set := collections.NewSet("a")
	set.Add("b")
	set.Add("b")
	if !set.Has("b") {
		t.Fatal("Set should contain added value")
	}
	set.Remove("a")
	set.Remove("a")
	if set.Has("a") {
		t.Fatal("Set should not contain removed value")
	}
	if got, want := len(set), 1; got != want {
		t.Fatalf("wrong length %d; want %d", got, want)
	}
}

func TestSet_union(t *testing.T) {
	a := collections.NewSet(1, 2)
	b := collections.NewSet(2, 3)
	got := collections.SortedValues(a.Union(b))
	want := []int{1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrong union result\n%s", diff)
	}
	// operands must be left alone
	if len(a) != 2 || len(b) != 2 {
		t.Fatal("Union modified an operand")
	}
}

func TestSet_copy(t *testing.T) {
	a := collections.NewSet("x", "y")
	b := a.Copy()
	b.Add("z")
	if a.Has("z") {
		t.Fatal("modifying a copy affected the original")
	}
}

func TestSet_string(t *testing.T) {
	testSet := collections.Set[string]{
		"a": {},
		"b": {},
		"c": {},
	}

	if str := testSet.String(); str != "a, b, c" {
		t.Fatalf("Incorrect string concatenation: %s", str)
	}
}

func TestSortedValues(t *testing.T) {
	set := collections.NewSet("delta", "alpha", "charlie", "bravo")
	got := collections.SortedValues(set)
	want := []string{"alpha", "bravo", "charlie", "delta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrong sorted values\n%s", diff)
	}
}
