package entity

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ChallengeKind tags the variants of Challenge.
type ChallengeKind string

const (
	ChallengeCharacter  ChallengeKind = "character"
	ChallengeFinger     ChallengeKind = "finger"
	ChallengePowerChord ChallengeKind = "power_chord"
	ChallengeWord       ChallengeKind = "word"
)

// ChordTarget is what the matcher compares input against.
type ChordTarget struct {
	Expected     []rune
	ValidOutputs []string
}

// Validate requires at least one expected character.
func (t ChordTarget) Validate() error {
	if len(CharSet(t.Expected)) == 0 {
		return ErrInvalidChordTarget
	}
	return nil
}

// Challenge is one presentable practice item. The set of implementations is
// closed: CharacterChallenge, FingerChallenge, PowerChordChallenge and
// WordChallenge.
type Challenge interface {
	Kind() ChallengeKind
	ItemKey() ItemKey
	Target() ChordTarget
	Prompt() string
	isChallenge()
}

// CharacterChallenge asks for a single character.
type CharacterChallenge struct {
	Char rune
}

// FingerChallenge asks for the key under a given finger. Progress is tracked
// against the character the key produces.
type FingerChallenge struct {
	Finger string
	Key    rune
}

// PowerChordChallenge asks for two keys pressed together.
type PowerChordChallenge struct {
	Keys   [2]rune
	Output string
}

// WordChallenge asks for a chorded word. Chord lists the keys of the chord;
// Alternates are other outputs the device may resolve the chord to.
type WordChallenge struct {
	Word       string
	Chord      []rune
	Alternates []string
}

func (CharacterChallenge) isChallenge()  {}
func (FingerChallenge) isChallenge()     {}
func (PowerChordChallenge) isChallenge() {}
func (WordChallenge) isChallenge()       {}

func (CharacterChallenge) Kind() ChallengeKind  { return ChallengeCharacter }
func (FingerChallenge) Kind() ChallengeKind     { return ChallengeFinger }
func (PowerChordChallenge) Kind() ChallengeKind { return ChallengePowerChord }
func (WordChallenge) Kind() ChallengeKind       { return ChallengeWord }

func (c CharacterChallenge) ItemKey() ItemKey {
	return ItemKey{ID: string(unicode.ToLower(c.Char)), Type: ItemTypeCharacter}
}

func (c FingerChallenge) ItemKey() ItemKey {
	return ItemKey{ID: string(unicode.ToLower(c.Key)), Type: ItemTypeCharacter}
}

func (c PowerChordChallenge) ItemKey() ItemKey {
	return ItemKey{ID: ChordID(c.Keys[:]), Type: ItemTypeTwoKeyChord}
}

func (c WordChallenge) ItemKey() ItemKey {
	return ItemKey{ID: NormalizeItemID(c.Word), Type: ItemTypeWord}
}

func (c CharacterChallenge) Target() ChordTarget {
	return ChordTarget{Expected: []rune{unicode.ToLower(c.Char)}}
}

func (c FingerChallenge) Target() ChordTarget {
	return ChordTarget{Expected: []rune{unicode.ToLower(c.Key)}}
}

func (c PowerChordChallenge) Target() ChordTarget {
	t := ChordTarget{Expected: []rune{unicode.ToLower(c.Keys[0]), unicode.ToLower(c.Keys[1])}}
	if out := strings.ToLower(strings.TrimSpace(c.Output)); out != "" {
		t.ValidOutputs = []string{out}
	}
	return t
}

func (c WordChallenge) Target() ChordTarget {
	word := strings.ToLower(strings.TrimSpace(c.Word))
	chord := c.Chord
	if len(chord) == 0 {
		chord = []rune(word)
	}
	t := ChordTarget{Expected: sortedRunes(CharSet(chord))}
	if word != "" {
		t.ValidOutputs = append(t.ValidOutputs, word)
	}
	for _, alt := range c.Alternates {
		if alt = strings.ToLower(strings.TrimSpace(alt)); alt != "" && alt != word {
			t.ValidOutputs = append(t.ValidOutputs, alt)
		}
	}
	return t
}

func (c CharacterChallenge) Prompt() string { return string(c.Char) }

func (c FingerChallenge) Prompt() string {
	return fmt.Sprintf("%s finger (%c)", c.Finger, c.Key)
}

func (c PowerChordChallenge) Prompt() string {
	if c.Output != "" {
		return fmt.Sprintf("%c+%c → %s", c.Keys[0], c.Keys[1], c.Output)
	}
	return fmt.Sprintf("%c+%c", c.Keys[0], c.Keys[1])
}

func (c WordChallenge) Prompt() string { return c.Word }

// ChordID builds the canonical id of a chord: its distinct lowercase keys in
// sorted order.
func ChordID(keys []rune) string {
	return string(sortedRunes(CharSet(keys)))
}

// ChallengeForItem rebuilds a challenge from a stored item key. Word items
// rebuilt this way use the word's letters as the chord.
func ChallengeForItem(key ItemKey) (Challenge, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	runes := []rune(NormalizeItemID(key.ID))
	switch key.Type {
	case ItemTypeCharacter:
		if len(runes) != 1 {
			return nil, fmt.Errorf("character item %q: %w", key.ID, ErrInvalidItemID)
		}
		return CharacterChallenge{Char: runes[0]}, nil
	case ItemTypeTwoKeyChord:
		if len(runes) != 2 {
			return nil, fmt.Errorf("two-key chord item %q: %w", key.ID, ErrInvalidItemID)
		}
		return PowerChordChallenge{Keys: [2]rune{runes[0], runes[1]}}, nil
	case ItemTypeWord:
		return WordChallenge{Word: string(runes)}, nil
	default:
		return nil, ErrInvalidItemType
	}
}

func sortedRunes(set map[rune]struct{}) []rune {
	out := make([]rune, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
