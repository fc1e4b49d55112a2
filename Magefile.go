//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Build builds the worker binary
func Build() error {
	mg.Deps(Lint, Test)

	fmt.Println("Building patchloop...")
	return sh.RunV("go", "build",
		"-o", "bin/patchloop",
		"-ldflags", "-s -w",
		".")
}

// Test runs all unit tests
func Test() error {
	fmt.Println("Running Go tests...")
	return sh.RunV("go", "test", "-race", "-coverprofile=coverage.out", "./...")
}

// Lint runs golangci-lint
func Lint() error {
	fmt.Println("Running linters...")
	return sh.RunV("golangci-lint", "run")
}

// LintFix runs linters with auto-fix
func LintFix() error {
	fmt.Println("Running linters with auto-fix...")
	return sh.RunV("golangci-lint", "run", "--fix")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}
