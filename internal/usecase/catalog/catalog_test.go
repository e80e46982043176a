package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eslsoft/chordnet/internal/entity"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if got := len(c.ByKind(entity.ChallengeCharacter)); got != 26 {
		t.Fatalf("characters: want 26 got %d", got)
	}
	if got := len(c.ByItemType(entity.ItemTypeTwoKeyChord)); got != len(powerChords) {
		t.Fatalf("power chords: want %d got %d", len(powerChords), got)
	}
	if got := len(c.ByItemType(entity.ItemTypeCharacter)); got != 26+len(homeRow) {
		t.Fatalf("character-tracked challenges: want %d got %d", 26+len(homeRow), got)
	}
	if c.Len() != len(c.ByItemType(entity.ItemTypeUnspecified)) {
		t.Fatalf("unspecified type should list everything")
	}
	for _, ch := range c.All() {
		if err := ch.Target().Validate(); err != nil {
			t.Fatalf("%s %s has an invalid target: %v", ch.Kind(), ch.Prompt(), err)
		}
	}
}

func TestNewDropsDuplicates(t *testing.T) {
	c := New([]entity.Challenge{
		entity.CharacterChallenge{Char: 'a'},
		entity.CharacterChallenge{Char: 'A'},
		entity.FingerChallenge{Finger: "left pinky", Key: 'a'},
	})
	if c.Len() != 2 {
		t.Fatalf("want 2 challenges, got %d", c.Len())
	}
}

func TestLookup(t *testing.T) {
	c := Default()
	ch, err := c.Lookup(entity.ItemKey{ID: "THAT", Type: entity.ItemTypeWord})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	word, ok := ch.(entity.WordChallenge)
	if !ok || len(word.Alternates) != 1 {
		t.Fatalf("expected catalog word with alternates, got %#v", ch)
	}

	ch, err = c.Lookup(entity.ItemKey{ID: "zebra", Type: entity.ItemTypeWord})
	if err != nil {
		t.Fatalf("lookup missing item: %v", err)
	}
	if ch.Prompt() != "zebra" {
		t.Fatalf("expected rebuilt challenge, got %q", ch.Prompt())
	}

	if _, err := c.Lookup(entity.ItemKey{ID: "abc", Type: entity.ItemTypeTwoKeyChord}); !errors.Is(err, entity.ErrInvalidItemID) {
		t.Fatalf("expected ErrInvalidItemID, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := `challenges:
  - kind: character
    char: q
  - kind: finger
    finger: right index
    char: j
  - kind: power_chord
    keys: "th"
    output: the
  - kind: word
    word: Chord
    chord: "chord"
    alternates: ["chords"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 4 {
		t.Fatalf("want 4 challenges, got %d", c.Len())
	}
	pc := c.ByKind(entity.ChallengePowerChord)[0].(entity.PowerChordChallenge)
	if pc.ItemKey().ID != "ht" || pc.Target().ValidOutputs[0] != "the" {
		t.Fatalf("unexpected power chord %+v", pc)
	}
	word := c.ByKind(entity.ChallengeWord)[0]
	if got := word.Target().ValidOutputs; len(got) != 2 || got[0] != "chord" {
		t.Fatalf("unexpected word outputs %v", got)
	}
}

func TestLoadRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"unknown kind":    "challenges:\n  - kind: melody\n",
		"long character":  "challenges:\n  - kind: character\n    char: ab\n",
		"same chord keys": "challenges:\n  - kind: power_chord\n    keys: aa\n",
		"empty":           "challenges: []\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	c, err := LoadOrDefault("  ")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if c.Len() != Default().Len() {
		t.Fatalf("expected default catalog")
	}
	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
