package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashFor(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func usersYAML(t *testing.T) string {
	t.Helper()
	return "users:\n" +
		"  - username: operator\n" +
		"    password_hash: " + hashFor(t, "s3cret") + "\n" +
		"  - username: analyst\n" +
		"    password_hash: " + hashFor(t, "hunter2") + "\n"
}

func TestParseUsers_Authenticate(t *testing.T) {
	p, err := ParseUsers([]byte(usersYAML(t)))
	if err != nil {
		t.Fatalf("ParseUsers: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d", p.Len())
	}

	tests := []struct {
		name     string
		user, pw string
		ok       bool
	}{
		{"valid", "operator", "s3cret", true},
		{"other valid", "analyst", "hunter2", true},
		{"wrong password", "operator", "hunter2", false},
		{"unknown user", "root", "s3cret", false},
		{"case matters", "Operator", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.Authenticate(context.Background(), tt.user, tt.pw)
			if tt.ok {
				if err != nil || id.Username != tt.user {
					t.Fatalf("Authenticate = %+v, %v", id, err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestParseUsers_Invalid(t *testing.T) {
	good := hashFor(t, "pw")
	tests := []struct {
		name    string
		yaml    string
		wantSub []string
	}{
		{"bad yaml", "users: [", []string{"decode yaml"}},
		{"no users", "users: []\n", []string{"no users"}},
		{"all problems reported", "users:\n" +
			"  - username: ''\n    password_hash: " + good + "\n" +
			"  - username: a\n    password_hash: plaintext\n" +
			"  - username: b\n    password_hash: " + good + "\n" +
			"  - username: b\n    password_hash: " + good + "\n",
			[]string{"username is empty", "not bcrypt", `duplicate username "b"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUsers([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, sub := range tt.wantSub {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q missing %q", err, sub)
				}
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte(usersYAML(t)), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestDenyAll(t *testing.T) {
	if _, err := (DenyAll{}).Authenticate(context.Background(), "operator", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}
