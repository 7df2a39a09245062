package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input   string
		want    Permission
		wantErr bool
	}{
		{"public", PermissionPublic, false},
		{"private", PermissionPrivate, false},
		{"protected", PermissionProtected, false},
		{"", "", true},
		{"Public", "", true},
		{"shared", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePermission(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPermission) {
				t.Errorf("ParsePermission(%q): expected ErrInvalidPermission, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePermission(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePermission(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewFileRecord_Defaults(t *testing.T) {
	f := NewFileRecord(7, "marie", "report.pdf", "application/pdf", "abc123", "deadbeef", 2048)

	if f.Permission != PermissionPrivate {
		t.Errorf("expected new records to default to private, got %q", f.Permission)
	}
	if f.PasswordHash != nil {
		t.Error("expected no password hash on a new record")
	}
	if f.UploadTime.IsZero() {
		t.Error("expected upload time to be set")
	}
	if f.IsProtected() {
		t.Error("new record should not be protected")
	}
}

func TestSetPermission_PasswordHashInvariant(t *testing.T) {
	f := NewFileRecord(1, "marie", "a.txt", "text/plain", "link1", "ref1", 10)
	hash := "$2a$12$fakehashfakehashfakehash"

	f.SetPermission(PermissionProtected, &hash)
	if f.PasswordHash == nil || *f.PasswordHash != hash {
		t.Fatal("expected password hash to be set for protected")
	}
	if !f.IsProtected() {
		t.Fatal("expected IsProtected after protected transition")
	}

	// Any transition away from protected clears the hash.
	f.SetPermission(PermissionPublic, nil)
	if f.PasswordHash != nil {
		t.Error("expected password hash cleared on public transition")
	}

	f.SetPermission(PermissionProtected, &hash)
	f.SetPermission(PermissionPrivate, nil)
	if f.PasswordHash != nil {
		t.Error("expected password hash cleared on private transition")
	}

	// A hash passed alongside a non-protected permission is ignored.
	f.SetPermission(PermissionPublic, &hash)
	if f.PasswordHash != nil {
		t.Error("expected hash to be dropped for non-protected permission")
	}
}

func TestFileRecord_JSONHidesInternalFields(t *testing.T) {
	hash := "secret-hash"
	f := NewFileRecord(1, "marie", "a.txt", "text/plain", "link1", "storage-ref-hex", 10)
	f.SetPermission(PermissionProtected, &hash)

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	if strings.Contains(body, "secret-hash") {
		t.Error("password hash leaked into JSON")
	}
	if strings.Contains(body, "storage-ref-hex") {
		t.Error("storage ref leaked into JSON")
	}
}

func TestListItem_Projection(t *testing.T) {
	hash := "hash"
	f := NewFileRecord(9, "marie", "notes.md", "text/markdown", "linkX", "refX", 64)
	f.ID = 42
	f.SetPermission(PermissionProtected, &hash)

	item := f.ListItem()
	if item.ID != 42 || item.OriginalFilename != "notes.md" || item.LinkID != "linkX" || item.Permission != PermissionProtected {
		t.Errorf("unexpected projection: %+v", item)
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"id"`, `"originalFilename"`, `"linkId"`, `"permission"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected JSON key %s in %s", key, data)
		}
	}
}
