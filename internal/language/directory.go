package language

import (
	"fmt"
	"sort"

	"github.com/caretalk-labs/caretalk-core/internal/config"
)

// Language describes one selectable conversation language.
type Language struct {
	Code        string
	Name        string
	BackendCode string
}

// Directory is an immutable code→language mapping built once at startup.
// Pipeline components receive it by injection; nothing mutates it afterwards.
type Directory struct {
	byCode map[string]Language
}

func defaults() []config.LanguageEntry {
	return []config.LanguageEntry{
		{Code: "eng", Name: "English", BackendCode: "en"},
		{Code: "urd", Name: "Urdu", BackendCode: "ur"},
		{Code: "pus", Name: "Pashto", BackendCode: "ps"},
		{Code: "spa", Name: "Spanish", BackendCode: "es"},
		{Code: "fra", Name: "French", BackendCode: "fr"},
		{Code: "deu", Name: "German", BackendCode: "de"},
		{Code: "ita", Name: "Italian", BackendCode: "it"},
		{Code: "por", Name: "Portuguese", BackendCode: "pt"},
		{Code: "rus", Name: "Russian", BackendCode: "ru"},
		{Code: "jpn", Name: "Japanese", BackendCode: "ja"},
		{Code: "kor", Name: "Korean", BackendCode: "ko"},
		{Code: "zho", Name: "Chinese", BackendCode: "zh"},
		{Code: "ara", Name: "Arabic", BackendCode: "ar"},
		{Code: "hin", Name: "Hindi", BackendCode: "hi"},
	}
}

// NewDirectory builds a directory from config entries, falling back to the
// built-in clinic language set when none are configured.
func NewDirectory(entries []config.LanguageEntry) *Directory {
	if len(entries) == 0 {
		entries = defaults()
	}
	byCode := make(map[string]Language, len(entries))
	for _, e := range entries {
		backend := e.BackendCode
		if backend == "" {
			backend = e.Code
		}
		byCode[e.Code] = Language{Code: e.Code, Name: e.Name, BackendCode: backend}
	}
	return &Directory{byCode: byCode}
}

// Lookup resolves a language code.
func (d *Directory) Lookup(code string) (Language, error) {
	lang, ok := d.byCode[code]
	if !ok {
		return Language{}, fmt.Errorf("unknown language code %q", code)
	}
	return lang, nil
}

// DisplayName returns the human name for a code, or the code itself when the
// code is not in the directory.
func (d *Directory) DisplayName(code string) string {
	if lang, ok := d.byCode[code]; ok {
		return lang.Name
	}
	return code
}

// All returns every language sorted by display name.
func (d *Directory) All() []Language {
	out := make([]Language, 0, len(d.byCode))
	for _, lang := range d.byCode {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
