package domain

// DriftReason explains why an installed file no longer matches the lockfile.
type DriftReason string

const (
	// DriftMissing means the file does not exist.
	DriftMissing DriftReason = "missing"
	// DriftModified means the file content changed since install.
	DriftModified DriftReason = "modified"
)

// Drift is one installed file that diverged from the lockfile.
type Drift struct {
	Package PackageID
	Path    string
	Reason  DriftReason
}
