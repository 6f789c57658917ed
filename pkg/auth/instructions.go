package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteProviderGuide prints where to find the API keys for provider
func WriteProviderGuide(w io.Writer, provider string) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "PROXY PROVIDER CREDENTIALS: %s\n", provider)
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)

	switch provider {
	case ProviderKuaidaili:
		fmt.Fprintln(w, "1. Log in at https://www.kuaidaili.com and open the order list.")
		fmt.Fprintln(w, "2. Under API settings, copy the SecretId of your private proxy order.")
		fmt.Fprintln(w, "3. Choose the 'simple' signature method and copy the signature value.")
	default:
		fmt.Fprintln(w, "Copy the API secret id and signature from the provider dashboard.")
	}

	idKey, sigKey := envKeys(provider)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The values are stored in the system keychain when available,")
	fmt.Fprintln(w, "otherwise in an encrypted file under the config directory.")
	fmt.Fprintf(w, "For CI, set %s and %s instead.\n", idKey, sigKey)
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
