package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// usersFile is the on-disk shape:
//
//	users:
//	  - username: operator
//	    password_hash: $2a$12$...
type usersFile struct {
	Users []userEntry `yaml:"users"`
}

type userEntry struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// FileProvider checks credentials against bcrypt hashes loaded once at
// startup. It is read-only after construction.
type FileProvider struct {
	hashes map[string][]byte
	// compared for unknown users so both paths cost one bcrypt run
	dummy []byte
}

// LoadFile reads and validates a users file.
func LoadFile(path string) (*FileProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read users file %s", path)
	}
	p, err := ParseUsers(raw)
	if err != nil {
		return nil, xerrors.Wrapf(err, "users file %s", path)
	}
	return p, nil
}

// ParseUsers builds a provider from YAML. Every problem found is reported.
func ParseUsers(raw []byte) (*FileProvider, error) {
	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, xerrors.Wrap(err, "decode yaml")
	}
	if len(f.Users) == 0 {
		return nil, xerrors.New("no users defined")
	}

	var errs []error
	hashes := make(map[string][]byte, len(f.Users))
	for i, u := range f.Users {
		name := strings.TrimSpace(u.Username)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("users[%d]: username is empty", i))
			continue
		case hashes[name] != nil:
			errs = append(errs, fmt.Errorf("users[%d]: duplicate username %q", i, name))
			continue
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			errs = append(errs, fmt.Errorf("users[%d] %q: password_hash is not bcrypt: %w", i, name, err))
			continue
		}
		hashes[name] = []byte(u.PasswordHash)
	}
	if err := xerrors.Join(errs...); err != nil {
		return nil, err
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, xerrors.Wrap(err, "generate dummy hash")
	}
	return &FileProvider{hashes: hashes, dummy: dummy}, nil
}

func (p *FileProvider) Authenticate(_ context.Context, username, password string) (Identity, error) {
	hash, ok := p.hashes[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Username: username}, nil
}

// Len is the number of configured users.
func (p *FileProvider) Len() int { return len(p.hashes) }
