package wiring_test

import (
	"testing"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/app"
	"go.trai.ch/compak/internal/engine/transaction"
	_ "go.trai.ch/compak/internal/wiring"
)

// TestGraftDependencies ensures that the dependency injection graph is valid
// at compile/test time. It checks that every node declaring a dependency
// actually uses it, and every used dependency is declared.
func TestGraftDependencies(t *testing.T) {
	// graft.AssertDepsValid infers the dependency ID from the package name of
	// the type used in Dep[T]. Every adapter here provides an interface from the
	// shared ports package, so the inferred IDs never match the node IDs.
	t.Skip("Skipping Graft validation due to static analysis limitation with shared ports package")
	graft.AssertDepsValid(t, "../../internal")
}

// TestGraftExecute builds the real component graph without touching the
// filesystem or the network.
func TestGraftExecute(t *testing.T) {
	components, _, err := graft.ExecuteFor[*app.Components](t.Context())
	if err != nil {
		t.Fatalf("failed to build components: %v", err)
	}
	if components.App == nil || components.Logger == nil || components.Telemetry == nil {
		t.Fatal("components are incomplete")
	}
	if err := components.Close(); err != nil {
		t.Fatalf("failed to close components: %v", err)
	}

	factory, _, err := graft.ExecuteFor[*transaction.Factory](t.Context())
	if err != nil {
		t.Fatalf("failed to build transaction factory: %v", err)
	}
	if factory == nil {
		t.Fatal("transaction factory is nil")
	}
}
