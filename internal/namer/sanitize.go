package namer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// structuralChars are characters unsafe inside any path component.
var structuralChars = regexp.MustCompile(`[<>:"/\\|?*\x00]`)

// multiSpace matches multiple consecutive spaces.
var multiSpace = regexp.MustCompile(`\s+`)

// multiDot matches multiple consecutive dots.
var multiDot = regexp.MustCompile(`\.{2,}`)

// SanitizeFilename cleans a filename component. Structurally dangerous
// characters are replaced, but interior dots are kept: the extension
// separator is appended by the caller and must survive untouched, and a
// title like "a.b.c" keeps its dots in the final name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = removeAccents(name)
	name = structuralChars.ReplaceAllString(name, " ")
	name = multiDot.ReplaceAllString(name, ".")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.Trim(name, " .")
}

// SanitizeSegment cleans a directory component. Unlike filenames, interior
// separator-like characters (including dots) are replaced so a folder name
// can never smuggle in extra path structure.
func SanitizeSegment(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = removeAccents(name)
	name = structuralChars.ReplaceAllString(name, " ")
	name = strings.ReplaceAll(name, ".", " ")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}
