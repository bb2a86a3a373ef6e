package main

import (
	"bytes"
	"fmt"
	"strings"
	"syscall"

	"github.com/fystack/guardkv/pkg/security"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// promptForSensitiveValues asks for the badger password and, for a fresh
// install, the initializer principal instead of reading them from config.
func promptForSensitiveValues() error {
	fmt.Println("WARNING: Please back up your Badger DB password in a secure location.")
	fmt.Println("If you lose this password, you will permanently lose the persisted authorized set!")

	password, err := readConfirmedPassword("Badger DB password")
	if err != nil {
		return err
	}
	defer security.ZeroBytes(password)

	fmt.Printf("Password set: %s\n", maskString(string(password)))
	viper.Set("badger_password", string(password))

	if viper.GetString("initializer") == "" {
		var initializer string
		fmt.Print("Enter initializer principal (leave empty when upgrading): ")
		_, _ = fmt.Scanln(&initializer)
		initializer = strings.TrimSpace(initializer)
		if initializer != "" {
			if _, _, err := types.Principal(initializer).KeyMaterial(); err != nil {
				return fmt.Errorf("invalid initializer principal: %w", err)
			}
			fmt.Printf("Initializer set: %s\n", maskString(initializer))
			viper.Set("initializer", initializer)
		}
	}

	fmt.Println("\n✓ Configuration complete!")
	return nil
}

func readConfirmedPassword(label string) ([]byte, error) {
	for {
		fmt.Printf("Enter %s: ", label)
		password, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", label, err)
		}
		fmt.Println()

		if len(password) == 0 {
			fmt.Println("Password cannot be empty. Please try again.")
			continue
		}

		fmt.Printf("Confirm %s: ", label)
		confirm, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return nil, fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		match := bytes.Equal(password, confirm)
		security.ZeroBytes(confirm)
		if !match {
			security.ZeroBytes(password)
			fmt.Println("Passwords do not match. Please try again.")
			continue
		}
		return password, nil
	}
}

func readSecret(label string) ([]byte, error) {
	fmt.Printf("Enter %s: ", label)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", label, err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", label)
	}
	return secret, nil
}

// maskString shows the first and last character of a string, replacing the middle with asterisks
func maskString(s string) string {
	if len(s) <= 2 {
		return s
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}
