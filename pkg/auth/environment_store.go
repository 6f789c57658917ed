package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore reads WEIBOCRAWL_<PROVIDER>_SECRET_ID and
// WEIBOCRAWL_<PROVIDER>_SIGNATURE. It is read-only.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func envKeys(provider string) (string, string) {
	p := "WEIBOCRAWL_" + strings.ToUpper(provider)
	return p + "_SECRET_ID", p + "_SIGNATURE"
}

func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(provider string) (*Credential, error) {
	if provider == "" {
		return nil, ErrInvalidCredentials
	}
	idKey, sigKey := envKeys(provider)
	secretID, signature := os.Getenv(idKey), os.Getenv(sigKey)
	if secretID == "" || signature == "" {
		return nil, ErrCredentialsNotFound
	}
	return &Credential{
		Provider:     provider,
		SecretID:     secretID,
		Signature:    signature,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve(ProviderKuaidaili)
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

func (e *EnvironmentStore) Delete(provider string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(provider string) bool {
	_, err := e.Retrieve(provider)
	return err == nil
}
