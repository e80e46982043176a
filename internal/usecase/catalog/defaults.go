package catalog

import "github.com/eslsoft/chordnet/internal/entity"

var homeRow = []struct {
	finger string
	key    rune
}{
	{"left pinky", 'a'},
	{"left ring", 's'},
	{"left middle", 'd'},
	{"left index", 'f'},
	{"right index", 'j'},
	{"right middle", 'k'},
	{"right ring", 'l'},
	{"right pinky", ';'},
}

var powerChords = []struct {
	keys   string
	output string
}{
	{"th", "the"},
	{"an", "and"},
	{"io", "ion"},
	{"er", "er"},
	{"in", "ing"},
	{"ou", "you"},
	{"wa", "was"},
	{"ti", "it"},
}

var words = []struct {
	word       string
	alternates []string
}{
	{"the", nil},
	{"and", nil},
	{"that", []string{"than"}},
	{"have", nil},
	{"for", nil},
	{"not", []string{"note"}},
	{"with", nil},
	{"you", []string{"your"}},
	{"this", nil},
	{"but", nil},
	{"from", nil},
	{"they", []string{"yet"}},
	{"what", nil},
	{"there", []string{"three"}},
	{"about", nil},
	{"which", nil},
	{"their", nil},
	{"would", nil},
	{"could", nil},
	{"people", nil},
}

// Default returns the built-in catalog: the alphabet, the home row by finger,
// common two-key power chords and frequent English words.
func Default() *Catalog {
	var out []entity.Challenge
	for r := 'a'; r <= 'z'; r++ {
		out = append(out, entity.CharacterChallenge{Char: r})
	}
	for _, h := range homeRow {
		out = append(out, entity.FingerChallenge{Finger: h.finger, Key: h.key})
	}
	for _, p := range powerChords {
		keys := []rune(p.keys)
		out = append(out, entity.PowerChordChallenge{Keys: [2]rune{keys[0], keys[1]}, Output: p.output})
	}
	for _, w := range words {
		out = append(out, entity.WordChallenge{Word: w.word, Alternates: w.alternates})
	}
	return New(out)
}
