package domain

import (
	"os"
	"path"
	"path/filepath"
)

const (
	// CompakDirName is the name of the per-project working directory.
	CompakDirName = ".compak"

	// PackagesDirName holds extracted package content.
	PackagesDirName = "packages"

	// StagingDirName holds transaction staging areas.
	StagingDirName = "staging"

	// ProjectLockName is the single-writer lock file inside the working directory.
	ProjectLockName = "lock"

	// LockFileName is the name of the lockfile at the project root.
	LockFileName = "compak.lock"

	// ConfigFileName is the name of the optional project configuration file.
	ConfigFileName = "compak.yaml"

	// DefaultBaseFile is the user-owned Compose file.
	DefaultBaseFile = "compose.yaml"

	// DefaultOverrideFile is the package-managed Compose override file.
	DefaultOverrideFile = "compose.compak.yaml"

	// EnvFileName is the rendered values file of each package.
	EnvFileName = ".env"

	// ManifestFileName is the manifest file name in package sources and registries.
	ManifestFileName = "manifest.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// PackageDir returns the project-relative, slash separated content directory of a package.
func PackageDir(id PackageID) string {
	return path.Join(CompakDirName, PackagesDirName, id.String())
}

// StagingRoot returns the staging directory for a project root.
func StagingRoot(root string) string {
	return filepath.Join(root, CompakDirName, StagingDirName)
}

// ProjectLockPath returns the lock file path for a project root.
func ProjectLockPath(root string) string {
	return filepath.Join(root, CompakDirName, ProjectLockName)
}

// DefaultRegistryPath returns the default local registry, ~/.compak/registry.
func DefaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, CompakDirName, "registry")
}
