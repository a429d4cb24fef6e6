package command

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWakeWord       = "lexicat"
	DefaultFuzzyThreshold = 0.88
)

// rule maps any of its phrases, found anywhere in the remainder, to a
// command.
type rule struct {
	phrases []string
	command Command
}

// rules is evaluated in order and the first match wins.
var rules = []rule{
	{[]string{"tomorrow", "next day"}, Command{Kind: Navigate, Delta: Tomorrow}},
	{[]string{"yesterday", "previous day"}, Command{Kind: Navigate, Delta: Yesterday}},
	{[]string{"today", "current day"}, Command{Kind: Navigate, Delta: Today}},
	{[]string{"next week"}, Command{Kind: Navigate, Delta: NextWeek}},
	{[]string{"previous week", "last week"}, Command{Kind: Navigate, Delta: PreviousWeek}},
	{[]string{"refresh", "update"}, Command{Kind: Refresh}},
	{[]string{"switch to weather", "weather"}, Command{Kind: SwitchView, View: ViewWeather}},
	{[]string{"switch to news", "news"}, Command{Kind: SwitchView, View: ViewNews}},
	{[]string{"switch to tasks", "tasks", "todo"}, Command{Kind: SwitchView, View: ViewTasks}},
	{[]string{"switch to calendar", "calendar"}, Command{Kind: SwitchView, View: ViewCalendar}},
	{[]string{"help", "commands"}, Command{Kind: Help}},
}

// Interpretation is everything learned from one transcription.
type Interpretation struct {
	Text       string
	Normalized string
	Wake       bool
	// Fuzzy is set when the wake word was only matched approximately.
	Fuzzy     bool
	Remainder string
	Command   Command
}

// Interpreter detects the wake word and parses the rest of the phrase.
// It holds no mutable state and is safe for concurrent use.
type Interpreter struct {
	wakeWord       string
	fuzzy          bool
	fuzzyThreshold float64
}

type Option func(*Interpreter)

// WithFuzzyWake accepts near misses of the wake word, such as "lexi cat",
// scoring at least threshold on Jaro-Winkler similarity.
func WithFuzzyWake(threshold float64) Option {
	return func(i *Interpreter) {
		i.fuzzy = true
		i.fuzzyThreshold = threshold
	}
}

func NewInterpreter(wakeWord string, opts ...Option) (*Interpreter, error) {
	wake := normalize(wakeWord)
	if wake == "" {
		return nil, fmt.Errorf("wake word must contain letters or digits, got %q", wakeWord)
	}

	i := &Interpreter{wakeWord: wake}
	for _, opt := range opts {
		opt(i)
	}

	if i.fuzzy && (i.fuzzyThreshold <= 0 || i.fuzzyThreshold > 1) {
		return nil, fmt.Errorf("fuzzy threshold must be in (0, 1], got %g", i.fuzzyThreshold)
	}
	return i, nil
}

// WakeWord returns the normalized wake word.
func (i *Interpreter) WakeWord() string {
	return i.wakeWord
}

// Interpret never fails: text without the wake word yields Wake=false and
// Command None, and an unknown phrase after the wake word yields Wake=true
// and Command None.
func (i *Interpreter) Interpret(text string) Interpretation {
	in := Interpretation{
		Text:       text,
		Normalized: normalize(text),
	}

	remainder, ok := stripFirst(in.Normalized, i.wakeWord)
	if !ok && i.fuzzy {
		remainder, ok = i.fuzzyStrip(in.Normalized)
		in.Fuzzy = ok
	}
	if !ok {
		return in
	}

	in.Wake = true
	in.Remainder = remainder
	in.Command = Parse(remainder)

	log.Debug().
		Str("text", text).
		Str("remainder", remainder).
		Bool("fuzzy", in.Fuzzy).
		Stringer("command", in.Command).
		Msg("Wake word detected")
	return in
}

// Parse matches an already wake-stripped phrase against the command table.
func Parse(phrase string) Command {
	phrase = normalize(phrase)
	if phrase == "" {
		return Command{Kind: None}
	}
	for _, r := range rules {
		for _, p := range r.phrases {
			if strings.Contains(phrase, p) {
				return r.command
			}
		}
	}
	return Command{Kind: None}
}

// stripFirst removes the first occurrence of word from s.
func stripFirst(s, word string) (string, bool) {
	idx := strings.Index(s, word)
	if idx < 0 {
		return "", false
	}
	return collapse(s[:idx] + " " + s[idx+len(word):]), true
}

// fuzzyStrip looks for a one or two token window that sounds like the wake
// word and removes the closest one. A window qualifies when its sound key
// equals the wake word's and its Jaro-Winkler score reaches the threshold,
// so real words sharing a prefix ("lexicon", "lexical") are not taken.
func (i *Interpreter) fuzzyStrip(s string) (string, bool) {
	tokens := strings.Fields(s)
	wakeKey := soundKey(i.wakeWord)

	best, bestStart, bestLen := 0.0, -1, 0
	for start := range tokens {
		for n := 1; n <= 2 && start+n <= len(tokens); n++ {
			candidate := strings.Join(tokens[start:start+n], "")
			if soundKey(candidate) != wakeKey {
				continue
			}
			score := matchr.JaroWinkler(candidate, i.wakeWord, false)
			if score > best {
				best, bestStart, bestLen = score, start, n
			}
		}
	}

	if bestStart < 0 || best < i.fuzzyThreshold {
		return "", false
	}

	rest := append(append([]string{}, tokens[:bestStart]...), tokens[bestStart+bestLen:]...)
	return strings.Join(rest, " "), true
}

// soundClasses folds letters recognizers commonly swap onto one class.
var soundClasses = map[rune]rune{
	'a': 'a', 'e': 'a', 'i': 'a', 'o': 'a', 'u': 'a', 'y': 'a',
	'c': 'k', 'k': 'k', 'q': 'k', 'g': 'k',
	'd': 't', 't': 't',
	's': 's', 'z': 's',
	'b': 'p', 'p': 'p',
	'f': 'f', 'v': 'f',
}

// soundKey maps s to its sound classes, dropping h and collapsing repeats:
// "lexicad" and "lexikat" share the key of "lexicat", "lexical" does not.
func soundKey(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		if r == 'h' || r == ' ' {
			continue
		}
		if c, ok := soundClasses[r]; ok {
			r = c
		}
		if r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

// normalize lower-cases s, turns punctuation into spaces and collapses runs
// of whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '\'' || r == '’' {
			return -1
		}
		return ' '
	}, s)
	return collapse(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Usage lists the spoken commands for wake.
func Usage(wake string) string {
	return fmt.Sprintf("%[1]s [today|tomorrow|yesterday|next week|previous week|refresh], "+
		"%[1]s switch to [calendar|weather|news|tasks], %[1]s help", wake)
}
