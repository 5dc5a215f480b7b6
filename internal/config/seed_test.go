package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadSeed_Valid(t *testing.T) {
	t.Parallel()

	path := writeSeed(t, `
roles:
  - name: auditor
    description: Read-only audit access
    permissions: [admin.audit, system.monitor]
users:
  - username: root-admin
    email: admin@example.com
    password: first-boot-secret
    role: admin
  - username: compliance-bot
    password: bot-secret
    role: auditor
api_keys:
  - user: compliance-bot
    name: ci
    key_hash: sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
    ttl_days: 30
`)

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error: %v", err)
	}

	if len(seed.Users) != 2 || len(seed.Roles) != 1 || len(seed.APIKeys) != 1 {
		t.Fatalf("parsed counts = %d users, %d roles, %d keys; want 2/1/1",
			len(seed.Users), len(seed.Roles), len(seed.APIKeys))
	}
	if seed.Users[0].Username != "root-admin" || seed.Users[0].Role != "admin" {
		t.Errorf("first user = %+v", seed.Users[0])
	}
	if got := seed.Roles[0].Permissions; len(got) != 2 || got[0] != "admin.audit" {
		t.Errorf("role permissions = %v", got)
	}
	if got := seed.APIKeys[0].Digest(); got != "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" {
		t.Errorf("Digest() = %q", got)
	}
	if seed.APIKeys[0].TTLDays != 30 {
		t.Errorf("TTLDays = %d, want 30", seed.APIKeys[0].TTLDays)
	}
}

func TestLoadSeed_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing username",
			content: "users:\n  - password: x\n    role: admin\n",
			wantErr: "username is required",
		},
		{
			name:    "missing password",
			content: "users:\n  - username: a\n    role: admin\n",
			wantErr: "password is required",
		},
		{
			name:    "missing role",
			content: "users:\n  - username: a\n    password: x\n",
			wantErr: "role is required",
		},
		{
			name:    "duplicate username",
			content: "users:\n  - {username: a, password: x, role: admin}\n  - {username: a, password: y, role: user}\n",
			wantErr: "duplicate username",
		},
		{
			name:    "role without permissions",
			content: "roles:\n  - name: empty\n",
			wantErr: "at least one permission",
		},
		{
			name:    "duplicate role",
			content: "roles:\n  - {name: r, permissions: [admin.audit]}\n  - {name: r, permissions: [admin.audit]}\n",
			wantErr: "duplicate role name",
		},
		{
			name:    "key for unknown user",
			content: "api_keys:\n  - user: ghost\n    key_hash: sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08\n",
			wantErr: "unknown user",
		},
		{
			name: "raw key instead of hash",
			content: "users:\n  - {username: a, password: x, role: admin}\n" +
				"api_keys:\n  - user: a\n    key_hash: sk_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA\n",
			wantErr: "must start with",
		},
		{
			name: "short digest",
			content: "users:\n  - {username: a, password: x, role: admin}\n" +
				"api_keys:\n  - user: a\n    key_hash: sha256:abcd\n",
			wantErr: "64 hex characters",
		},
		{
			name: "non-hex digest",
			content: "users:\n  - {username: a, password: x, role: admin}\n" +
				"api_keys:\n  - user: a\n    key_hash: sha256:zz86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08\n",
			wantErr: "not valid hex",
		},
		{
			name:    "malformed yaml",
			content: "users: [unclosed\n",
			wantErr: "parse seed file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeSeed(t, tt.content)
			_, err := LoadSeed(path)
			if err == nil {
				t.Fatalf("LoadSeed() should fail, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSeed_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadSeed() should fail for a missing file")
	}
}

func TestSeedKey_DigestNormalizesCase(t *testing.T) {
	t.Parallel()

	k := SeedKey{KeyHash: "sha256:9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"}
	want := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got := k.Digest(); got != want {
		t.Errorf("Digest() = %q, want %q", got, want)
	}
}
