package account

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"workspaced/internal/config"
)

var (
	// ErrUnauthorized means no usable credentials: missing with guest
	// access disabled, unknown name, or wrong password.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the credentials matched an inactive account.
	ErrForbidden = errors.New("account inactive")
)

// Audit keys written to the account session on every resolution.
const (
	GlobalLastAuthAt = "lastAuthAt"
	GlobalLastAuthOK = "lastAuthOK"
)

// Resolve maps a request's Basic-Auth credentials to exactly one
// account, or fails. Anonymous requests fall back to the guest account
// when one is enabled. The resolution outcome and timestamp are stashed
// in the account session for auditing.
func (d *Directory) Resolve(r *http.Request) (*Account, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		guest := d.guest
		if guest == nil {
			return nil, ErrUnauthorized
		}
		if !guest.Active() {
			return nil, ErrForbidden
		}
		guest.session.SetGlobal(GlobalLastAuthAt, time.Now())
		guest.session.SetGlobal(GlobalLastAuthOK, true)
		return guest, nil
	}

	name, pass, ok := parseBasicAuth(header)
	if !ok {
		return nil, ErrUnauthorized
	}
	acct, found := d.users[name]
	if !found {
		// Burn comparable work so unknown names are not cheaper than
		// wrong passwords.
		_ = subtle.ConstantTimeCompare([]byte(pass), []byte(pass))
		return nil, ErrUnauthorized
	}
	if !verifyPassword(d.creds[name], pass) {
		acct.session.SetGlobal(GlobalLastAuthAt, time.Now())
		acct.session.SetGlobal(GlobalLastAuthOK, false)
		return nil, ErrUnauthorized
	}
	acct.session.SetGlobal(GlobalLastAuthAt, time.Now())
	acct.session.SetGlobal(GlobalLastAuthOK, acct.Active())
	if !acct.Active() {
		return nil, ErrForbidden
	}
	return acct, nil
}

func verifyPassword(cred config.UserAccount, pass string) bool {
	if cred.Bcrypt != "" {
		return bcrypt.CompareHashAndPassword([]byte(cred.Bcrypt), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cred.Password), []byte(pass)) == 1
}

func parseBasicAuth(v string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	s := string(raw)
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return "", "", false
	}
	u, p := s[:i], s[i+1:]
	if strings.ContainsRune(u, '\x00') || strings.ContainsRune(p, '\x00') {
		return "", "", false
	}
	return u, p, true
}
