package entity

import (
	"strings"
	"unicode"
)

// ItemType identifies which kind of learnable item a progress record tracks.
type ItemType string

const (
	ItemTypeUnspecified ItemType = ""
	ItemTypeCharacter   ItemType = "character"
	ItemTypeTwoKeyChord ItemType = "two_key_chord"
	ItemTypeWord        ItemType = "word"
)

// ItemTypes lists every supported item type in a stable order.
var ItemTypes = []ItemType{ItemTypeCharacter, ItemTypeTwoKeyChord, ItemTypeWord}

// Valid reports whether the item type is one of the supported values.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeCharacter, ItemTypeTwoKeyChord, ItemTypeWord:
		return true
	default:
		return false
	}
}

// ParseItemType converts an arbitrary string into a supported ItemType value.
func ParseItemType(raw string) ItemType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "character", "char":
		return ItemTypeCharacter
	case "two_key_chord", "twokeychord", "chord", "power_chord":
		return ItemTypeTwoKeyChord
	case "word":
		return ItemTypeWord
	default:
		return ItemTypeUnspecified
	}
}

// ItemKey is the identity of a learnable item.
type ItemKey struct {
	ID   string
	Type ItemType
}

func (k ItemKey) String() string { return string(k.Type) + ":" + k.ID }

// Validate checks that the key can address a progress record.
func (k ItemKey) Validate() error {
	if !k.Type.Valid() {
		return ErrInvalidItemType
	}
	if strings.TrimSpace(k.ID) == "" {
		return ErrInvalidItemID
	}
	return nil
}

// NormalizeItemID lowercases and trims an item id.
func NormalizeItemID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// CharSet dedupes and lowercases a list of runes, dropping whitespace.
func CharSet(chars []rune) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		if unicode.IsSpace(r) {
			continue
		}
		set[unicode.ToLower(r)] = struct{}{}
	}
	return set
}
