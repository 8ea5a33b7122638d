package language

import (
	"testing"

	"github.com/caretalk-labs/caretalk-core/internal/config"
)

func TestLookupDefaults(t *testing.T) {
	dir := NewDirectory(nil)
	lang, err := dir.Lookup("urd")
	if err != nil {
		t.Fatalf("lookup urd: %v", err)
	}
	if lang.Name != "Urdu" || lang.BackendCode != "ur" {
		t.Fatalf("unexpected language: %+v", lang)
	}
	if _, err := dir.Lookup("xxx"); err == nil {
		t.Fatal("expected error for unknown code")
	}
}

func TestConfiguredEntriesReplaceDefaults(t *testing.T) {
	dir := NewDirectory([]config.LanguageEntry{{Code: "nld", Name: "Dutch"}})
	if _, err := dir.Lookup("eng"); err == nil {
		t.Fatal("expected defaults to be replaced")
	}
	lang, err := dir.Lookup("nld")
	if err != nil {
		t.Fatalf("lookup nld: %v", err)
	}
	if lang.BackendCode != "nld" {
		t.Fatalf("expected backend code fallback to code, got %q", lang.BackendCode)
	}
	if got := dir.DisplayName("nld"); got != "Dutch" {
		t.Fatalf("display name: %q", got)
	}
	if got := dir.DisplayName("zzz"); got != "zzz" {
		t.Fatalf("display name fallback: %q", got)
	}
}
