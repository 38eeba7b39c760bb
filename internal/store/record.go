package store

import (
	"errors"
	"fmt"
	"strings"

	"driftwatch/internal/fingerprint"
)

const fieldSep = ": "

func formatRecord(url, digest string) (string, error) {
	if url == "" {
		return "", errors.New("record url must not be empty")
	}
	if strings.ContainsAny(url, "\r\n") {
		return "", fmt.Errorf("record url %q must not contain line breaks", url)
	}
	if !fingerprint.Valid(digest) {
		return "", fmt.Errorf("record digest %q is not a valid fingerprint", digest)
	}
	return url + fieldSep + digest + "\n", nil
}

// parseRecord splits on the last separator: digests never contain ": ", URLs
// may. Lines end in a bare "\n"; a CRLF line fails the digest check.
func parseRecord(raw string) (Observation, error) {
	line := trimNewline(raw)
	if line == "" {
		return Observation{}, errors.New("empty line")
	}
	i := strings.LastIndex(line, fieldSep)
	if i < 0 {
		return Observation{}, fmt.Errorf("missing %q separator", fieldSep)
	}
	url, digest := line[:i], line[i+len(fieldSep):]
	if url == "" {
		return Observation{}, errors.New("empty url")
	}
	if !fingerprint.Valid(digest) {
		return Observation{}, fmt.Errorf("invalid digest %q", digest)
	}
	return Observation{URL: url, Digest: digest}, nil
}

func trimNewline(s string) string {
	return strings.TrimSuffix(s, "\n")
}
