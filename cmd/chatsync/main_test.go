package main

import "testing"

func TestVersionDefault(t *testing.T) {
	if version == "" {
		t.Fatalf("version must default to a non-empty value")
	}
}
