// Package catalog provides the challenges a practice session can draw from.
package catalog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/eslsoft/chordnet/internal/entity"
)

// Catalog is an immutable, de-duplicated list of challenges.
type Catalog struct {
	challenges []entity.Challenge
}

// New builds a catalog, dropping challenges whose item key repeats.
func New(challenges []entity.Challenge) *Catalog {
	uniq := lo.UniqBy(challenges, func(c entity.Challenge) string {
		return string(c.Kind()) + "/" + c.ItemKey().String()
	})
	return &Catalog{challenges: uniq}
}

// All returns every challenge.
func (c *Catalog) All() []entity.Challenge {
	return append([]entity.Challenge(nil), c.challenges...)
}

// ByKind returns the challenges of one kind.
func (c *Catalog) ByKind(kind entity.ChallengeKind) []entity.Challenge {
	return lo.Filter(c.challenges, func(ch entity.Challenge, _ int) bool {
		return ch.Kind() == kind
	})
}

// ByItemType returns the challenges whose progress is tracked as itemType.
// An unspecified type returns everything.
func (c *Catalog) ByItemType(itemType entity.ItemType) []entity.Challenge {
	if itemType == entity.ItemTypeUnspecified {
		return c.All()
	}
	return lo.Filter(c.challenges, func(ch entity.Challenge, _ int) bool {
		return ch.ItemKey().Type == itemType
	})
}

// Lookup finds the challenge for a stored item. Items missing from the
// catalog are rebuilt from their key.
func (c *Catalog) Lookup(key entity.ItemKey) (entity.Challenge, error) {
	key = entity.ItemKey{ID: entity.NormalizeItemID(key.ID), Type: key.Type}
	if ch, ok := lo.Find(c.challenges, func(ch entity.Challenge) bool {
		return ch.ItemKey() == key
	}); ok {
		return ch, nil
	}
	return entity.ChallengeForItem(key)
}

func (c *Catalog) Len() int { return len(c.challenges) }

// Entry is the file representation of one challenge.
type Entry struct {
	Kind       string   `mapstructure:"kind"`
	Char       string   `mapstructure:"char"`
	Finger     string   `mapstructure:"finger"`
	Keys       string   `mapstructure:"keys"`
	Output     string   `mapstructure:"output"`
	Word       string   `mapstructure:"word"`
	Chord      string   `mapstructure:"chord"`
	Alternates []string `mapstructure:"alternates"`
}

// Challenge converts the entry, validating the fields its kind needs.
func (e Entry) Challenge() (entity.Challenge, error) {
	switch entity.ChallengeKind(strings.ToLower(strings.TrimSpace(e.Kind))) {
	case entity.ChallengeCharacter:
		r, err := singleRune(e.Char)
		if err != nil {
			return nil, fmt.Errorf("character: %w", err)
		}
		return entity.CharacterChallenge{Char: r}, nil
	case entity.ChallengeFinger:
		r, err := singleRune(e.Char)
		if err != nil {
			return nil, fmt.Errorf("finger: %w", err)
		}
		if strings.TrimSpace(e.Finger) == "" {
			return nil, fmt.Errorf("finger: %w: finger name is required", entity.ErrInvalidChordTarget)
		}
		return entity.FingerChallenge{Finger: strings.TrimSpace(e.Finger), Key: r}, nil
	case entity.ChallengePowerChord:
		keys := []rune(strings.ReplaceAll(e.Keys, " ", ""))
		if len(keys) != 2 || keys[0] == keys[1] {
			return nil, fmt.Errorf("power chord %q: %w: need two distinct keys", e.Keys, entity.ErrInvalidChordTarget)
		}
		return entity.PowerChordChallenge{Keys: [2]rune{keys[0], keys[1]}, Output: strings.TrimSpace(e.Output)}, nil
	case entity.ChallengeWord:
		word := strings.TrimSpace(e.Word)
		if word == "" {
			return nil, fmt.Errorf("word: %w: word is required", entity.ErrInvalidChordTarget)
		}
		return entity.WordChallenge{
			Word:       word,
			Chord:      []rune(strings.ReplaceAll(e.Chord, " ", "")),
			Alternates: e.Alternates,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownChallengeKind, e.Kind)
	}
}

// Load reads a catalog file. Any format viper understands works; the file
// holds a top-level "challenges" list.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var file struct {
		Challenges []Entry `mapstructure:"challenges"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	challenges := make([]entity.Challenge, 0, len(file.Challenges))
	for i, entry := range file.Challenges {
		ch, err := entry.Challenge()
		if err != nil {
			return nil, fmt.Errorf("catalog %s entry %d: %w", path, i, err)
		}
		challenges = append(challenges, ch)
	}
	if len(challenges) == 0 {
		return nil, fmt.Errorf("catalog %s: %w", path, entity.ErrNoChallenges)
	}
	return New(challenges), nil
}

// LoadOrDefault loads path, or returns the built-in catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

func singleRune(s string) (rune, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q is not a single character", entity.ErrInvalidChordTarget, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
