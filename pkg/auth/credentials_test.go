package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	cred := &Credential{
		Provider:  ProviderKuaidaili,
		SecretID:  "of21w76tet3m6vm82s5u",
		Signature: "n51r5hxbhfuuifvhr3x4jukvk4nao1xy",
	}

	if err := manager.Store(cred); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}
	if cred.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve(ProviderKuaidaili)
	if err != nil {
		t.Fatalf("Failed to retrieve credential: %v", err)
	}
	if retrieved.SecretID != cred.SecretID {
		t.Errorf("SecretID mismatch: got %s, want %s", retrieved.SecretID, cred.SecretID)
	}
	if retrieved.Signature != cred.Signature {
		t.Errorf("Signature mismatch: got %s, want %s", retrieved.Signature, cred.Signature)
	}

	creds, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list credentials: %v", err)
	}
	if len(creds) != 1 {
		t.Errorf("Expected 1 credential, got %d", len(creds))
	}

	if err := manager.Delete(ProviderKuaidaili); err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}
	if _, err := manager.Retrieve(ProviderKuaidaili); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound after delete, got %v", err)
	}
	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 credentials after deletion, got %d", mockStore.Count())
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	tests := []struct {
		name string
		cred *Credential
	}{
		{"nil", nil},
		{"no provider", &Credential{SecretID: "a", Signature: "b"}},
		{"no secret id", &Credential{Provider: "p", Signature: "b"}},
		{"no signature", &Credential{Provider: "p", SecretID: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.Store(tt.cred); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestManagerFallsBackAcrossStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = fmt.Errorf("keychain locked")
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)
	err := manager.Store(&Credential{Provider: "p", SecretID: "a", Signature: "b"})
	if err != nil {
		t.Fatalf("Store should fall through to the second store: %v", err)
	}
	if working.Count() != 1 {
		t.Errorf("expected credential in fallback store")
	}
}

func TestManagerListKeepsNewest(t *testing.T) {
	older, newer := NewMockStore(), NewMockStore()
	_ = older.Store(&Credential{Provider: "p", SecretID: "old", Signature: "s", LastModified: time.Now().Add(-time.Hour)})
	_ = newer.Store(&Credential{Provider: "p", SecretID: "new", Signature: "s", LastModified: time.Now()})

	creds, _ := NewManagerWithStores(older, newer).List()
	if len(creds) != 1 || creds[0].SecretID != "new" {
		t.Errorf("expected the newest credential, got %+v", creds)
	}
}

func TestSanitize(t *testing.T) {
	cred := &Credential{Provider: "p", SecretID: "of21w76tet3m6vm82s5u", Signature: "short"}
	s := Sanitize(cred)

	if s.SecretID != "of21...2s5u" {
		t.Errorf("unexpected masked secret id %q", s.SecretID)
	}
	if s.Signature != "********" {
		t.Errorf("short values should be fully masked, got %q", s.Signature)
	}
	if s.Provider != "p" {
		t.Error("provider should not be masked")
	}
	if Sanitize(nil) != nil {
		t.Error("Sanitize(nil) should be nil")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	cred := &Credential{Provider: ProviderKuaidaili, SecretID: "plain_secret_id", Signature: "plain_signature"}
	if err := store.Store(cred); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve(ProviderKuaidaili)
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.Signature != cred.Signature {
		t.Errorf("Signature mismatch after encryption/decryption")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("plain_secret_id")) || bytes.Contains(content, []byte("plain_signature")) {
		t.Error("File contains plaintext secrets")
	}

	// a second store with the same passphrase reads the same file
	again, _ := NewEncryptedFileStore(path)
	if !again.Exists(ProviderKuaidaili) {
		t.Error("credential should survive reopening the store")
	}

	if err := store.Delete(ProviderKuaidaili); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be removed once empty")
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")

	t.Setenv(PassphraseEnv, "first")
	store, _ := NewEncryptedFileStore(path)
	_ = store.Store(&Credential{Provider: "p", SecretID: "a", Signature: "b"})

	t.Setenv(PassphraseEnv, "second")
	other, _ := NewEncryptedFileStore(path)
	if _, err := other.Retrieve("p"); err == nil {
		t.Error("expected decryption failure with a different passphrase")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("WEIBOCRAWL_KUAIDAILI_SECRET_ID", "env_id")
	t.Setenv("WEIBOCRAWL_KUAIDAILI_SIGNATURE", "env_sig")

	store := NewEnvironmentStore()

	cred, err := store.Retrieve(ProviderKuaidaili)
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if cred.SecretID != "env_id" || cred.Signature != "env_sig" {
		t.Errorf("unexpected credential %+v", cred)
	}

	if err := store.Store(&Credential{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
	if store.Exists("other") {
		t.Error("unset provider should not exist")
	}
}

func TestWriteProviderGuide(t *testing.T) {
	var buf bytes.Buffer
	WriteProviderGuide(&buf, ProviderKuaidaili)
	if !strings.Contains(buf.String(), "WEIBOCRAWL_KUAIDAILI_SECRET_ID") {
		t.Errorf("guide should mention the env override:\n%s", buf.String())
	}
}
