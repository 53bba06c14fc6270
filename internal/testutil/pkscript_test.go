package testutil

import (
	"bytes"
	"testing"
)

func TestNewPkScriptSourceRejectsInvalidMnemonic(t *testing.T) {
	if _, err := NewPkScriptSource("not a real mnemonic"); err == nil {
		t.Fatal("expected error for invalid mnemonic")
	}
}

func TestPkScriptSourceDeterministic(t *testing.T) {
	a, err := NewPkScriptSource(FixedMnemonic)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPkScriptSource(FixedMnemonic)
	if err != nil {
		t.Fatal(err)
	}

	scriptsA, err := a.NextN(5)
	if err != nil {
		t.Fatal(err)
	}
	scriptsB, err := b.NextN(5)
	if err != nil {
		t.Fatal(err)
	}

	for i := range scriptsA {
		if !bytes.Equal(scriptsA[i], scriptsB[i]) {
			t.Fatalf("script %d not deterministic: %x != %x", i, scriptsA[i], scriptsB[i])
		}
	}
}

func TestPkScriptSourceDistinct(t *testing.T) {
	src, err := NewPkScriptSource(FixedMnemonic)
	if err != nil {
		t.Fatal(err)
	}

	scripts, err := src.NextN(10)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, s := range scripts {
		key := string(s)
		if seen[key] {
			t.Fatalf("duplicate pkscript: %x", s)
		}
		seen[key] = true
	}
}
