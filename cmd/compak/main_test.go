package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/compak/internal/app"
	"go.trai.ch/compak/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"compak": func() {
			os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, provideComponents))
		},
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			env.Setenv("NO_COLOR", "1")
			env.Setenv("HOME", env.WorkDir)
			return nil
		},
	})
}

func newApp(ctrl *gomock.Controller) *app.App {
	return app.New(
		mocks.NewMockConfigLoader(ctrl),
		mocks.NewMockRegistryFactory(ctrl),
		mocks.NewMockLockfileStore(ctrl),
		mocks.NewMockVerifier(ctrl),
		mocks.NewMockComposeMerger(ctrl),
		mocks.NewMockArchiver(ctrl),
		nil,
		mocks.NewMockTracer(ctrl),
		mocks.NewMockTelemetry(ctrl),
		mocks.NewMockLogger(ctrl),
	)
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)

	cleaned := false
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{
			App:    newApp(ctrl),
			Logger: mockLogger,
		}, func() { cleaned = true }, nil
	}

	stdout := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stdout, new(bytes.Buffer), provider)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "compak version")
	assert.True(t, cleaned)
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, new(bytes.Buffer), stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that run returns 1 and logs when the command fails.
func TestRun_ExecutionError(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockLoader := mocks.NewMockConfigLoader(ctrl)
	mockLoader.EXPECT().FindRoot(".").Return("", errors.New("no project"))
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Error(gomock.Any()).Times(1)

	application := app.New(
		mockLoader,
		mocks.NewMockRegistryFactory(ctrl),
		mocks.NewMockLockfileStore(ctrl),
		mocks.NewMockVerifier(ctrl),
		mocks.NewMockComposeMerger(ctrl),
		mocks.NewMockArchiver(ctrl),
		nil,
		mocks.NewMockTracer(ctrl),
		mocks.NewMockTelemetry(ctrl),
		mockLogger,
	)
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: application, Logger: mockLogger}, func() {}, nil
	}

	exitCode := run(context.Background(), []string{"list"}, new(bytes.Buffer), new(bytes.Buffer), provider)
	assert.Equal(t, 1, exitCode)
}
