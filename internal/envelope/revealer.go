package envelope

import "context"

// Revealer drives a Session against a remote store.
type Revealer struct {
	remote      Remote
	gateMode    string
	maxAttempts int
}

func NewRevealer(remote Remote, gateMode string, maxAttempts int) *Revealer {
	return &Revealer{remote: remote, gateMode: gateMode, maxAttempts: maxAttempts}
}

// Open parses the link and, unless the password must be checked first,
// consumes the record and decrypts it.
func (r *Revealer) Open(ctx context.Context, link string) Session {
	id, f, err := ParseLink(link)
	if err != nil {
		return Failed(err)
	}
	s := NewSession(id, f, r.gateMode, r.maxAttempts)
	if s.State == StateFetching {
		env, err := r.remote.Fetch(ctx, id)
		s = s.Fetched(env, err)
	}
	return r.decrypt(s)
}

// Submit checks a password guess. A session outside the password prompt
// is returned unchanged, so nothing is accepted after lockout.
func (r *Revealer) Submit(ctx context.Context, s Session, password string) Session {
	if s.State != StatePasswordRequired {
		return s
	}

	if s.Holding() {
		ok, err := VerifyPassword(password, s.held.PasswordVerifier)
		if err != nil {
			return s.fail(err)
		}
		s = s.PasswordChecked(ok)
		if s.State == StateLockedOut {
			// the record is already gone from the store; this only
			// carries the intent through
			_ = r.remote.Delete(ctx, s.ID)
		}
	} else {
		env, err := r.remote.Claim(ctx, s.ID, password)
		s = s.Claimed(env, err)
	}
	return r.decrypt(s)
}

func (r *Revealer) decrypt(s Session) Session {
	if s.State != StateDecrypting || s.held == nil {
		return s
	}
	pt, err := Decrypt(s.held.Ciphertext, s.Fragment.Key)
	return s.Decrypted(pt, err)
}
