// Package signature implements the SHA-512 parameter signing scheme shared by
// outbound ePDQ requests and inbound ePDQ notifications.
package signature

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// ErrBlankPassphrase is returned when signing without a passphrase.
var ErrBlankPassphrase = errors.New("signature: passphrase must not be blank")

// Param is one name/value pair of a signed payload.
type Param struct {
	Name  string
	Value string
}

// Canonicalise returns the byte string that is hashed for params: every non-empty
// parameter as NAME=value followed by the passphrase, ordered by upper-cased name.
// params is not modified.
func Canonicalise(params []Param, passphrase string) string {
	kept := lo.FilterMap(params, func(p Param, _ int) (Param, bool) {
		return Param{Name: strings.ToUpper(p.Name), Value: p.Value}, p.Value != ""
	})
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Name != kept[j].Name {
			return kept[i].Name < kept[j].Name
		}
		return kept[i].Value < kept[j].Value
	})

	var b strings.Builder
	for _, p := range kept {
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
		b.WriteString(passphrase)
	}
	return b.String()
}

// Sign returns the lower-case hex SHA-512 digest of the canonical form of params.
func Sign(params []Param, passphrase string) (string, error) {
	if strings.TrimSpace(passphrase) == "" {
		return "", ErrBlankPassphrase
	}
	sum := sha512.Sum512([]byte(Canonicalise(params, passphrase)))
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether supplied is the signature of params. Hex case is ignored.
func Verify(params []Param, supplied, passphrase string) bool {
	expected, err := Sign(params, passphrase)
	if err != nil || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(supplied))) == 1
}
