package domain

import "go.trai.ch/zerr"

var (
	// ErrMalformedManifest is returned when a package manifest cannot be parsed or fails validation.
	ErrMalformedManifest = zerr.New("malformed manifest")

	// ErrInvalidPackageID is returned when a package identifier is empty or contains forbidden characters.
	ErrInvalidPackageID = zerr.New("invalid package id")

	// ErrInvalidVersion is returned when a version string is not a valid semantic version.
	ErrInvalidVersion = zerr.New("invalid version")

	// ErrInvalidConstraint is returned when a version constraint cannot be parsed.
	ErrInvalidConstraint = zerr.New("invalid version constraint")

	// ErrRegistryError is returned when a registry fetch fails for a reason other than a missing package.
	ErrRegistryError = zerr.New("registry error")

	// ErrRegistryUnavailable is returned when the registry cannot be reached. It is retryable.
	ErrRegistryUnavailable = zerr.New("registry unavailable")

	// ErrPackageNotFound is returned when the registry does not know a package or version.
	ErrPackageNotFound = zerr.New("package not found")

	// ErrConflict is returned when no combination of versions satisfies every constraint.
	ErrConflict = zerr.New("version conflict")

	// ErrCyclicDependency is returned when packages depend on each other in a cycle.
	ErrCyclicDependency = zerr.New("cyclic dependency")

	// ErrCorruptLockfile is returned when the lockfile cannot be read back.
	ErrCorruptLockfile = zerr.New("corrupt lockfile")

	// ErrMergeConflict is returned when two contributors claim the same reserved Compose key.
	ErrMergeConflict = zerr.New("compose merge conflict")

	// ErrFilesystem is returned when staging a transaction fails on disk.
	ErrFilesystem = zerr.New("filesystem error")

	// ErrCommitFailed is returned when swapping staged files into the project fails midway.
	ErrCommitFailed = zerr.New("commit failed, manual recovery required")

	// ErrProjectLocked is returned when another transaction holds the project lock.
	ErrProjectLocked = zerr.New("project is locked by another transaction")

	// ErrTransactionCancelled is returned when a transaction is cancelled before commit.
	ErrTransactionCancelled = zerr.New("transaction cancelled")

	// ErrInvalidTransition is returned when a transaction is driven out of order.
	ErrInvalidTransition = zerr.New("invalid transaction state transition")

	// ErrDigestMismatch is returned when downloaded content does not match its advertised digest.
	ErrDigestMismatch = zerr.New("content digest mismatch")

	// ErrPackageNotInstalled is returned when an operation targets a package missing from the lockfile.
	ErrPackageNotInstalled = zerr.New("package not installed")

	// ErrInvalidParameter is returned when a parameter value does not match its declared type.
	ErrInvalidParameter = zerr.New("invalid parameter value")

	// ErrMissingParameter is returned when a required parameter has no value.
	ErrMissingParameter = zerr.New("missing required parameter")

	// ErrNoPackagesSpecified is returned when a command needs at least one package argument.
	ErrNoPackagesSpecified = zerr.New("no packages specified")

	// ErrInvalidConfig is returned when the project configuration is invalid.
	ErrInvalidConfig = zerr.New("invalid project configuration")

	// ErrUnsafePath is returned when archive content would escape its destination.
	ErrUnsafePath = zerr.New("unsafe path in package content")
)
