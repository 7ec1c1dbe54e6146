// Package verse provides the immutable Quran verse index.
//
// Every verse has a dense global ordinal in [1, N] (N = 6236 with the
// Kufan count). The index maps ordinals to (surah, ayah, text) and back.
//
// Bismillah convention: ayah 1 of every surah except surah 9 (At-Tawbah)
// is flagged with Bismillah. For surah 1 the bismillah is the ayah itself;
// for the others it is recited before ayah 1 and shown with it. The flag
// is table data and never changes numbering.
//
// An Index is built once at startup and never mutated afterwards, so it is
// safe for concurrent use without locking.
package verse

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed surahs.yaml
var surahTable []byte

// BismillahText is shown before ayah 1 of flagged surahs.
const BismillahText = "بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ"

// NoBismillahSurah is the one surah that does not open with the bismillah.
const NoBismillahSurah = 9

// ErrNotFound is returned for ordinals or positions outside the index.
var ErrNotFound = errors.New("verse not found")

// Surah describes one surah of the table.
type Surah struct {
	Number int    `yaml:"number"`
	Name   string `yaml:"name"`
	Ayahs  int    `yaml:"ayahs"`

	// First is the global ordinal of ayah 1.
	First int `yaml:"-"`
}

// Verse is one entry of the index.
type Verse struct {
	Ordinal   int    `json:"ordinal"`
	Surah     int    `json:"surah"`
	Ayah      int    `json:"ayah"`
	Text      string `json:"text,omitempty"`
	Bismillah bool   `json:"bismillah,omitempty"`
}

// Index is the immutable ordinal table.
type Index struct {
	surahs []Surah
	verses []Verse // verses[o-1] is ordinal o
}

// Option customises Load.
type Option func(*loadOptions)

type loadOptions struct {
	text io.Reader
}

// WithText loads verse text from r in the tanzil "surah|ayah|text" format.
// Blank lines and lines starting with '#' are skipped.
func WithText(r io.Reader) Option {
	return func(o *loadOptions) {
		o.text = r
	}
}

// Load builds the index from the embedded surah table.
func Load(opts ...Option) (*Index, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	var surahs []Surah
	if err := yaml.Unmarshal(surahTable, &surahs); err != nil {
		return nil, fmt.Errorf("parse surah table: %w", err)
	}

	idx, err := New(surahs)
	if err != nil {
		return nil, err
	}

	if o.text != nil {
		if err := idx.loadText(o.text); err != nil {
			return nil, fmt.Errorf("load verse text: %w", err)
		}
	}
	return idx, nil
}

// MustLoad is Load without options that panics on error. The embedded table
// is validated by tests, so failure here means a broken build.
func MustLoad() *Index {
	idx, err := Load()
	if err != nil {
		panic(err)
	}
	return idx
}

// New builds an index from a surah table in mushaf order.
func New(surahs []Surah) (*Index, error) {
	idx := &Index{surahs: make([]Surah, len(surahs))}
	ordinal := 1
	for i, s := range surahs {
		if s.Number != i+1 {
			return nil, fmt.Errorf("surah table entry %d has number %d", i+1, s.Number)
		}
		if s.Ayahs <= 0 {
			return nil, fmt.Errorf("surah %d has %d ayahs", s.Number, s.Ayahs)
		}
		s.Name = norm.NFC.String(s.Name)
		s.First = ordinal
		idx.surahs[i] = s
		for a := 1; a <= s.Ayahs; a++ {
			idx.verses = append(idx.verses, Verse{
				Ordinal:   ordinal,
				Surah:     s.Number,
				Ayah:      a,
				Bismillah: a == 1 && s.Number != NoBismillahSurah,
			})
			ordinal++
		}
	}
	return idx, nil
}

func (idx *Index) loadText(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		parts := strings.SplitN(raw, "|", 3)
		if len(parts) != 3 {
			return fmt.Errorf("line %d: expected surah|ayah|text", line)
		}
		surah, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("line %d: surah: %w", line, err)
		}
		ayah, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("line %d: ayah: %w", line, err)
		}
		o, err := idx.Ordinal(surah, ayah)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		idx.verses[o-1].Text = norm.NFC.String(parts[2])
	}
	return sc.Err()
}

// Len returns N, the number of verses.
func (idx *Index) Len() int {
	return len(idx.verses)
}

// Verse looks up an ordinal.
func (idx *Index) Verse(ordinal int) (Verse, error) {
	if ordinal < 1 || ordinal > len(idx.verses) {
		return Verse{}, fmt.Errorf("%w: ordinal %d outside [1, %d]", ErrNotFound, ordinal, len(idx.verses))
	}
	return idx.verses[ordinal-1], nil
}

// Ordinal looks up a (surah, ayah) position.
func (idx *Index) Ordinal(surah, ayah int) (int, error) {
	s, err := idx.Surah(surah)
	if err != nil {
		return 0, err
	}
	if ayah < 1 || ayah > s.Ayahs {
		return 0, fmt.Errorf("%w: surah %d has no ayah %d", ErrNotFound, surah, ayah)
	}
	return s.First + ayah - 1, nil
}

// Surah returns the table entry for surah number n.
func (idx *Index) Surah(n int) (Surah, error) {
	if n < 1 || n > len(idx.surahs) {
		return Surah{}, fmt.Errorf("%w: surah %d outside [1, %d]", ErrNotFound, n, len(idx.surahs))
	}
	return idx.surahs[n-1], nil
}

// ValidRange reports whether [start, end] is a non-empty range of ordinals.
func (idx *Index) ValidRange(start, end int) error {
	if start > end {
		return fmt.Errorf("range start %d after end %d", start, end)
	}
	if _, err := idx.Verse(start); err != nil {
		return err
	}
	if _, err := idx.Verse(end); err != nil {
		return err
	}
	return nil
}

// Display renders a verse for chat output, prefixing the bismillah where the
// table flags it (except surah 1, where it is the verse itself).
func (v Verse) Display() string {
	if v.Bismillah && v.Surah != 1 && v.Text != "" {
		return BismillahText + "\n" + v.Text
	}
	return v.Text
}

// Position returns the "surah:ayah" form used by the CLI.
func (v Verse) Position() string {
	return fmt.Sprintf("%d:%d", v.Surah, v.Ayah)
}

// ParsePosition parses either an ordinal ("255") or a "surah:ayah" pair.
func (idx *Index) ParsePosition(s string) (Verse, error) {
	if surah, ayah, ok := strings.Cut(s, ":"); ok {
		sn, err := strconv.Atoi(strings.TrimSpace(surah))
		if err != nil {
			return Verse{}, fmt.Errorf("parse surah %q: %w", surah, err)
		}
		an, err := strconv.Atoi(strings.TrimSpace(ayah))
		if err != nil {
			return Verse{}, fmt.Errorf("parse ayah %q: %w", ayah, err)
		}
		o, err := idx.Ordinal(sn, an)
		if err != nil {
			return Verse{}, err
		}
		return idx.Verse(o)
	}
	o, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Verse{}, fmt.Errorf("parse ordinal %q: %w", s, err)
	}
	return idx.Verse(o)
}
