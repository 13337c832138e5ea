package envelope

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/smallwat3r/secretlink/internal/domain"
)

const (
	protectedFlag   = "p_true"
	unprotectedFlag = "p_false"
	fieldSep        = ":::"
)

// Fragment is the part of a link that never leaves the recipient's
// machine: the decryption key and whether a password gate applies.
type Fragment struct {
	Protected bool
	Key       []byte
}

// Encode renders the fragment as base64("p_true:::<hex key>") or
// base64("p_false:::<hex key>").
func (f Fragment) Encode() string {
	flag := unprotectedFlag
	if f.Protected {
		flag = protectedFlag
	}
	raw := flag + fieldSep + hex.EncodeToString(f.Key)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseFragment decodes a fragment produced by Encode. Padded standard
// base64 is accepted too.
func ParseFragment(s string) (Fragment, error) {
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return Fragment{}, locatorError("missing fragment")
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Fragment{}, locatorError("fragment is not base64")
		}
	}

	flag, keyHex, ok := strings.Cut(string(raw), fieldSep)
	if !ok {
		return Fragment{}, locatorError("fragment has no key")
	}

	var f Fragment
	switch flag {
	case protectedFlag:
		f.Protected = true
	case unprotectedFlag:
	default:
		return Fragment{}, locatorError("unknown protection flag")
	}

	f.Key, err = hex.DecodeString(keyHex)
	if err != nil || len(f.Key) != keyLen {
		return Fragment{}, locatorError("bad key")
	}
	return f, nil
}

// BuildLink returns <base>/?id=<id>#<fragment>. Only the query part is
// ever sent to the server.
func BuildLink(baseURL, id string, f Fragment) string {
	q := url.Values{"id": {id}}
	return strings.TrimRight(baseURL, "/") + "/?" + q.Encode() + "#" + f.Encode()
}

// ParseLink splits a recipient link into the store identifier and the
// fragment.
func ParseLink(link string) (string, Fragment, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", Fragment{}, locatorError("not a url")
	}
	id := u.Query().Get("id")
	if !domain.ValidID(id) {
		return "", Fragment{}, locatorError("missing or invalid id")
	}
	f, err := ParseFragment(u.Fragment)
	if err != nil {
		return "", Fragment{}, err
	}
	return id, f, nil
}
