package attendance

import (
	"context"
	"errors"
	"sort"
	"time"

	"qrattend/internal/subject"
	"qrattend/internal/token"
)

// Directory is the subject lookup the resolver and service need.
type Directory interface {
	Get(ctx context.Context, id int64) (subject.Subject, error)
	FindByName(ctx context.Context, name string) (subject.Subject, error)
	List(ctx context.Context) ([]subject.Subject, error)
}

// Resolution is the subject and work date a token refers to.
type Resolution struct {
	Subject subject.Subject
	Date    string
}

// Resolver maps decoded tokens back to subjects.
type Resolver struct {
	dir      Directory
	codec    token.Codec
	lookback int
}

// NewResolver creates a resolver. lookback is how many days before today a
// hashed token may have been issued for.
func NewResolver(dir Directory, codec token.Codec, lookback int) *Resolver {
	if lookback < 0 {
		lookback = 0
	}
	return &Resolver{dir: dir, codec: codec, lookback: lookback}
}

// Resolve finds the subject for p. today anchors the hashed-mode date search.
func (r *Resolver) Resolve(ctx context.Context, p token.Payload, today time.Time) (Resolution, error) {
	if p.Mode == token.ModeHashed {
		return r.resolveHash(ctx, p.Hash, today)
	}
	sub, err := r.dir.FindByName(ctx, p.Name)
	if err != nil {
		if errors.Is(err, subject.ErrNotFound) {
			return Resolution{}, ErrSubjectNotFound
		}
		return Resolution{}, err
	}
	return Resolution{Subject: sub, Date: p.Date}, nil
}

// resolveHash recomputes the digest of every subject for each candidate date,
// newest date first and subjects in id order, and compares.
func (r *Resolver) resolveHash(ctx context.Context, hash string, today time.Time) (Resolution, error) {
	subs, err := r.dir.List(ctx)
	if err != nil {
		return Resolution{}, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	var (
		first   Resolution
		matches int
	)
	for d := 0; d <= r.lookback; d++ {
		date := today.AddDate(0, 0, -d).Format(DateLayout)
		for _, s := range subs {
			if r.codec.Digest(s.Name, date) != hash {
				continue
			}
			if matches == 0 {
				first = Resolution{Subject: s, Date: date}
			}
			matches++
		}
	}
	switch matches {
	case 0:
		return Resolution{}, ErrSubjectNotFound
	case 1:
		return first, nil
	}
	return first, ErrAmbiguousMatch
}
