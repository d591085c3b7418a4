//go:build mage

// Package main contains Mage build targets for chess-analysis.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir = "bin"
)

// commands maps binary names to their packages.
var commands = map[string]string{
	"chess-analysis": "./cmd/analyzer",
	"backend":        "./cmd/backend",
}

// Build compiles the binaries into bin/.
func Build() error {
	mg.Deps(Vet)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	for name, pkg := range commands {
		out := filepath.Join(binDir, name)
		if err := sh.RunV("go", "build", "-o", out, pkg); err != nil {
			return fmt.Errorf("go build %s: %w", pkg, err)
		}
		fmt.Printf("Built %s\n", out)
	}
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Lint runs golangci-lint when it is installed.
func Lint() error {
	if _, err := sh.Output("golangci-lint", "version"); err != nil {
		fmt.Println("golangci-lint not found, skipping")
		return nil
	}
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
