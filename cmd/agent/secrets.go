package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"kubeagentic/pkg/config"
)

// runSecrets implements the `agent secrets <init|list>` subcommands.
func runSecrets(args []string) int {
	flags := flag.NewFlagSet("secrets", flag.ExitOnError)
	dir := flags.String("dir", ".", "Directory holding the encrypted secrets file")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agent secrets [-dir DIR] <init|list>")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	switch flags.Arg(0) {
	case "init":
		if err := secretsInit(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "secrets init failed: %v\n", err)
			return 1
		}
		return 0
	case "list":
		if err := secretsList(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "secrets list failed: %v\n", err)
			return 1
		}
		return 0
	default:
		flags.Usage()
		return 2
	}
}

// secretsInit interactively creates the encrypted secrets file.
func secretsInit(dir string) error {
	if config.SecretsFileExists(dir) {
		return fmt.Errorf("%s already exists; remove it first to re-initialize", config.SecretsFilePath(dir))
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("Enter %s: ", config.EnvAPIKey)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		return fmt.Errorf("no API key provided")
	}
	apiKey := strings.TrimSpace(scanner.Text())
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	secrets := map[string]string{config.EnvAPIKey: apiKey}

	fmt.Println()
	fmt.Println("🔐 Encrypting and saving credentials...")
	if err := config.EncryptSecretsFile(dir, password, secrets); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	fmt.Printf("✅ Credentials saved to %s (file permissions: 0600)\n", config.SecretsFilePath(dir))
	fmt.Printf("💡 Store the password in %s for passwordless startup.\n", config.EnvSecretsPassword)
	return nil
}

// secretsList prints the names stored in the secrets file, never the values.
func secretsList(dir string) error {
	if !config.SecretsFileExists(dir) {
		return fmt.Errorf("no secrets file at %s", config.SecretsFilePath(dir))
	}

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	secrets, err := config.DecryptSecretsFile(dir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)

	names := config.GetDecryptedSecretNames()
	if len(names) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// resolvePassword returns the secrets password, preferring the environment
// over an interactive no-echo prompt.
func resolvePassword() (string, error) {
	if password := os.Getenv(config.EnvSecretsPassword); password != "" {
		return password, nil
	}

	fmt.Print("Enter secrets password: ")
	raw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

// promptNewPassword prompts for a password with confirmation.
func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for the secrets file: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("❌ Passwords do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
		}

		password := string(password1)

		// Clear password bytes from memory
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}

		if password == "" {
			return "", fmt.Errorf("password cannot be empty")
		}
		return password, nil
	}

	return "", fmt.Errorf("failed to get matching passwords")
}
