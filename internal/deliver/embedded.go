package deliver

import (
	"regexp"
	"strings"
)

// assetPatterns are the known shapes an embedded asset URL takes in the
// detail page markup, in the order they are worth trying: JSON fields
// first, data attributes second, bare file URLs last.
var assetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"(?:stream|download|transcoding|file)_?[uU]rl"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`data-(?:audio|stream|download)-url=["']([^"']+)["']`),
	regexp.MustCompile(`https?://[^"'\s\\]+\.(?:mp3|m4a|ogg|flac|wav|opus)(?:\?[^"'\s\\]*)?`),
}

// nonTargetMedia rejects matches that structurally look like video or
// segmented-stream resources rather than the audio asset.
var nonTargetMedia = regexp.MustCompile(`\.(?:mp4|webm|mov|avi|m3u8)(?:$|[?#])|/videos?/`)

// FindAssetURL pattern-matches an embedded asset URL out of raw markup.
// Returns ErrNoAssetURL when nothing qualifying is found.
func FindAssetURL(html string) (string, error) {
	for _, pat := range assetPatterns {
		for _, m := range pat.FindAllStringSubmatch(html, -1) {
			candidate := m[0]
			if len(m) > 1 {
				candidate = m[1]
			}
			candidate = unescapeJSON(candidate)
			if candidate == "" || nonTargetMedia.MatchString(candidate) {
				continue
			}
			return candidate, nil
		}
	}
	return "", ErrNoAssetURL
}

// unescapeJSON undoes the escaping commonly seen in inline JSON blobs.
func unescapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	return s
}
