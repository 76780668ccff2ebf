package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dazzleduck/flightsql-server/internal/authz"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, "warehouse-path: /data/warehouse\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 32010 || c.AccessMode != "restricted" {
		t.Fatalf("got %+v", c)
	}
}

func TestLoad_FullDocument(t *testing.T) {
	doc := `
users:
  - username: alice
    password: deadbeef
access-rules:
  - principal: alice
    database: main
    schema: public
    tableOrPath: orders
    objectKind: BASE_TABLE
user-groups:
  alice: [analysts]
login_url: https://example.com/login
warehouse-path: /data/warehouse
port: 9999
access-mode: complete
`
	path := writeTemp(t, doc)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Users) != 1 || c.Users[0].Username != "alice" {
		t.Fatalf("got %+v", c.Users)
	}
	if len(c.AccessRules) != 1 {
		t.Fatalf("got %+v", c.AccessRules)
	}
	if got := c.GroupsFor("alice"); len(got) != 1 || got[0] != "analysts" {
		t.Fatalf("got %+v", got)
	}
	if c.Mode() != authz.Complete {
		t.Fatalf("want Complete mode, got %v", c.Mode())
	}
	if got := c.ResolveURL(); got != "https://example.com/resolve" {
		t.Fatalf("got %q", got)
	}
}

func TestValidate_RejectsMissingWarehouse(t *testing.T) {
	c := &Config{Port: 1, AccessMode: "restricted"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_RejectsBadAccessMode(t *testing.T) {
	c := &Config{WarehousePath: "/data", Port: 1, AccessMode: "sorta"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error")
	}
}
