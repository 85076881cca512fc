package domain

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind tags what a transfer downloads.
type Kind int

const (
	KindGeneric Kind = iota
	KindROM
	KindKernel
)

func (k Kind) String() string {
	switch k {
	case KindROM:
		return "rom"
	case KindKernel:
		return "kernel"
	default:
		return "generic"
	}
}

// Dir returns the subdirectory of the download root used for this kind.
func (k Kind) Dir() string {
	switch k {
	case KindROM:
		return "rom"
	case KindKernel:
		return "kernel"
	default:
		return "other"
	}
}

// ParseKind parses the textual form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rom":
		return KindROM, nil
	case "kernel":
		return KindKernel, nil
	case "", "generic":
		return KindGeneric, nil
	}
	return KindGeneric, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TransferSpec describes a file to download. It is supplied by a metadata
// source and never modified once a transfer is created from it.
type TransferSpec struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Changelog string    `json:"changelog,omitempty"`
	URL       string    `json:"url"`
	Checksum  string    `json:"checksum,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields needed to run a transfer.
func (s TransferSpec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidSpec)
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidSpec)
	}
	if s.Kind != KindGeneric && strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required for %s transfers", ErrInvalidSpec, s.Kind)
	}
	return nil
}

// TransferID derives the stable identity of a transfer from its spec.
// Identical specs always map to the same id.
func TransferID(s TransferSpec) int64 {
	fields := []string{
		s.Kind.String(),
		s.Name,
		s.Version,
		s.Changelog,
		s.URL,
		strings.ToLower(s.Checksum),
		strconv.FormatInt(s.Timestamp.UTC().UnixNano(), 10),
	}
	return int64(xxhash.Sum64String(strings.Join(fields, "\x00")) & math.MaxInt64)
}

// FileName returns the sanitized destination file name for the spec.
func (s TransferSpec) FileName() string {
	switch s.Kind {
	case KindROM, KindKernel:
		return SanitizeName(s.Name + "__" + s.Version + ".zip")
	}
	if u, err := url.Parse(s.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return SanitizeName(base)
		}
	}
	if s.Name != "" {
		return SanitizeName(s.Name + "__" + s.Version)
	}
	return "download.bin"
}

var stripNonASCII = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// SanitizeName folds a display name into a portable file name: accents are
// decomposed and dropped, spaces become underscores and the result is lowercased.
func SanitizeName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, stripNonASCII), name)
	if err != nil {
		folded = name
	}
	folded = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(folded)
	return strings.ToLower(folded)
}
