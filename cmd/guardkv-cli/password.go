package main

import (
	"errors"
	"fmt"
	"syscall"
	"unicode"

	"golang.org/x/term"
)

const minPassphraseLength = 12

func ContainsAtLeastNSpecial(s string, n int) bool {
	count := 0
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			count++
			if count >= n {
				return true
			}
		}
	}
	return false
}

func validatePassphrase(passphrase string) error {
	if len(passphrase) < minPassphraseLength {
		return fmt.Errorf("passphrase must be at least %d characters", minPassphraseLength)
	}
	if !ContainsAtLeastNSpecial(passphrase, 1) {
		return errors.New("passphrase must contain at least one special character")
	}
	return nil
}

// requestPassword prompts for a new passphrase twice.
func requestPassword() (string, error) {
	fmt.Print("Enter passphrase to encrypt private key: ")
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if err := validatePassphrase(string(passphrase)); err != nil {
		return "", err
	}

	fmt.Print("Confirm passphrase: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase confirmation: %w", err)
	}
	if string(passphrase) != string(confirm) {
		return "", errors.New("passphrases do not match")
	}
	return string(passphrase), nil
}

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return string(secret), nil
}
