package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"weibocrawl/pkg/auth"
	"weibocrawl/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage paid proxy provider credentials",
	Long: `Manage API keys for paid proxy providers.

Credentials are stored in:
  - the system keychain (when available)
  - an encrypted file under the config directory
  - environment variables (read-only, for CI)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [provider]",
	Short: "Store provider API keys",
	Example: `  weibocrawl auth login
  weibocrawl auth login kuaidaili`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <provider>",
	Short: "Remove stored provider API keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored providers with masked keys",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	provider := auth.ProviderKuaidaili
	if len(args) > 0 {
		provider = strings.ToLower(strings.TrimSpace(args[0]))
	}

	auth.WriteProviderGuide(os.Stdout, provider)
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	if existing, _ := manager.Retrieve(provider); existing != nil {
		fmt.Printf("Credentials for '%s' already exist. Replace them? (y/N): ", provider)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("SecretId: ")
	secretID, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read secret id: %w", err)
	}
	fmt.Print("\nSignature: ")
	signature, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	fmt.Println()

	if secretID == "" || signature == "" {
		return errors.New("secret id and signature are both required")
	}

	cred := &auth.Credential{
		Provider:     provider,
		SecretID:     secretID,
		Signature:    signature,
		LastModified: time.Now(),
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	masked := auth.Sanitize(cred)
	ui.PrintSuccess(fmt.Sprintf("Stored credentials for %s (%s)", provider, masked.SecretID))
	fmt.Println("\nUse them with:")
	fmt.Println("  weibocrawl crawl --kuaidaili --targets uids.txt")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	ui.PrintSuccess("Credentials removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(creds) == 0 {
		ui.PrintInfo("No stored credentials", "use 'weibocrawl auth login' to add a provider")
		return nil
	}

	ui.PrintHighlight("Stored Providers")
	fmt.Println()
	for i, c := range creds {
		s := auth.Sanitize(c)
		fmt.Printf("%d. Provider: %s\n", i+1, s.Provider)
		fmt.Printf("   SecretId: %s\n", s.SecretID)
		fmt.Printf("   Signature: %s\n", s.Signature)
		if !s.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

// readSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
