package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-exam-api/pkg/docker"
)

const stdinFileName = "stdin.txt"

// Runner executes a request to completion and reports a response. It never fails:
// infrastructure problems are reported as INITIALIZATION_ERROR or UNKNOWN_ERROR.
type Runner interface {
	Run(ctx context.Context, request Request) Response
}

// LanguageSpec tells the sandbox runner how to build and start a program.
type LanguageSpec struct {
	Image           string
	DefaultMainFile string
	Env             []string
	// Compile returns the build command, or nil when the language is interpreted.
	Compile func(mainFile string, flags []string) []string
	Run     func(mainFile string) []string
}

// DefaultLanguages returns the toolchains supported out of the box.
func DefaultLanguages() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		"c": {
			Image:           "gcc:13",
			DefaultMainFile: "main.c",
			Compile: func(mainFile string, flags []string) []string {
				return append(append([]string{"gcc"}, flags...), "-o", "program", mainFile)
			},
			Run: func(string) []string { return []string{"./program"} },
		},
		"cpp": {
			Image:           "gcc:13",
			DefaultMainFile: "main.cpp",
			Compile: func(mainFile string, flags []string) []string {
				return append(append([]string{"g++"}, flags...), "-o", "program", mainFile)
			},
			Run: func(string) []string { return []string{"./program"} },
		},
		"java": {
			Image:           "eclipse-temurin:21",
			DefaultMainFile: "Main.java",
			Compile: func(mainFile string, flags []string) []string {
				return append(append([]string{"javac"}, flags...), mainFile)
			},
			Run: func(mainFile string) []string {
				return []string{"java", "-cp", ".", strings.TrimSuffix(mainFile, ".java")}
			},
		},
		"python": {
			Image:           "python:3.11-alpine",
			DefaultMainFile: "main.py",
			Run:             func(mainFile string) []string { return []string{"python", mainFile} },
		},
		"javascript": {
			Image:           "node:20-alpine",
			DefaultMainFile: "main.js",
			Run:             func(mainFile string) []string { return []string{"node", mainFile} },
		},
		"go": {
			Image:           "golang:1.22-alpine",
			DefaultMainFile: "main.go",
			Env:             []string{"GOCACHE=/tmp/gocache", "GOPATH=/tmp/gopath", "CGO_ENABLED=0"},
			Compile: func(mainFile string, flags []string) []string {
				return append(append([]string{"go", "build"}, flags...), "-o", "program", mainFile)
			},
			Run: func(string) []string { return []string{"./program"} },
		},
	}
}

// SandboxRunnerConfig configures a SandboxRunner.
type SandboxRunnerConfig struct {
	WorkRoot       string
	CompileTimeout time.Duration
	Languages      map[string]LanguageSpec
	Logger         zerolog.Logger
}

// SandboxRunner compiles and runs programs inside docker containers.
type SandboxRunner struct {
	sandbox        docker.Sandbox
	workRoot       string
	compileTimeout time.Duration
	languages      map[string]LanguageSpec
	tracer         trace.Tracer
	logger         zerolog.Logger
}

// NewSandboxRunner constructs a runner backed by sandbox.
func NewSandboxRunner(sandbox docker.Sandbox, cfg SandboxRunnerConfig) *SandboxRunner {
	languages := cfg.Languages
	if languages == nil {
		languages = DefaultLanguages()
	}
	compileTimeout := cfg.CompileTimeout
	if compileTimeout <= 0 {
		compileTimeout = 30 * time.Second
	}
	return &SandboxRunner{
		sandbox:        sandbox,
		workRoot:       cfg.WorkRoot,
		compileTimeout: compileTimeout,
		languages:      languages,
		tracer:         otel.Tracer("github.com/noah-isme/gema-exam-api/internal/execution"),
		logger:         cfg.Logger.With().Str("component", "sandbox_runner").Logger(),
	}
}

// Run compiles when the language needs it, then runs the program with the request's
// stdin, arguments and timeout.
func (r *SandboxRunner) Run(ctx context.Context, request Request) Response {
	ctx, span := r.tracer.Start(ctx, "execution.runner.run", trace.WithAttributes(
		attribute.String("execution.language", request.Language),
	))
	defer span.End()

	language, ok := r.languages[strings.ToLower(strings.TrimSpace(request.Language))]
	if !ok {
		return Response{Status: StatusInitializationError, Detail: fmt.Sprintf("unsupported language %q", request.Language)}
	}

	mainFile := filepath.Base(strings.TrimSpace(request.MainFileName))
	if mainFile == "" || mainFile == "." || mainFile == string(filepath.Separator) {
		mainFile = language.DefaultMainFile
	}

	workspace, err := r.prepareWorkspace(mainFile, request)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to prepare sandbox workspace")
		return Response{Status: StatusInitializationError, Detail: err.Error()}
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			r.logger.Warn().Err(err).Str("workspace", workspace).Msg("failed to clean sandbox workspace")
		}
	}()

	if language.Compile != nil {
		compiled, err := r.sandbox.Run(ctx, docker.RunSpec{
			Image:     language.Image,
			Stage:     "compile",
			Cmd:       language.Compile(mainFile, strings.Fields(request.CompilerFlags)),
			Env:       language.Env,
			Timeout:   r.compileTimeout,
			Workspace: workspace,
		})
		if err != nil {
			return failureResponse(err)
		}
		if compiled.TimedOut {
			return Response{Status: StatusCompileError, Stdout: compiled.Stdout, Stderr: compiled.Stderr, Detail: "compilation timed out"}
		}
		if compiled.ExitCode != 0 {
			return Response{
				Status:   StatusCompileError,
				ExitCode: intPtr(compiled.ExitCode),
				Stdout:   compiled.Stdout,
				Stderr:   compiled.Stderr,
			}
		}
	}

	cmd := append([]string{"sh", "-c", `exec "$@" < ` + stdinFileName, "sandbox"}, language.Run(mainFile)...)
	cmd = append(cmd, request.ProgramArguments...)

	ran, err := r.sandbox.Run(ctx, docker.RunSpec{
		Image:     language.Image,
		Stage:     "run",
		Cmd:       cmd,
		Env:       language.Env,
		Timeout:   request.Timeout,
		Workspace: workspace,
	})
	if err != nil {
		return failureResponse(err)
	}

	response := Response{
		Stdout:         ran.Stdout,
		Stderr:         ran.Stderr,
		DurationMillis: ran.Duration.Milliseconds(),
	}
	if ran.TimedOut {
		response.Status = StatusTimeout
		response.Detail = fmt.Sprintf("execution exceeded %s", request.Timeout)
		return response
	}
	response.Status = StatusCompleted
	response.ExitCode = intPtr(ran.ExitCode)
	return response
}

func (r *SandboxRunner) prepareWorkspace(mainFile string, request Request) (string, error) {
	workspace, err := os.MkdirTemp(r.workRoot, "exam-run-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, mainFile), []byte(request.Source), 0o644); err != nil {
		_ = os.RemoveAll(workspace)
		return "", fmt.Errorf("write source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, stdinFileName), []byte(request.Stdin), 0o644); err != nil {
		_ = os.RemoveAll(workspace)
		return "", fmt.Errorf("write stdin: %w", err)
	}
	return workspace, nil
}

func failureResponse(err error) Response {
	if errors.Is(err, docker.ErrContainerSetup) || errors.Is(err, docker.ErrImageRequired) {
		return Response{Status: StatusInitializationError, Detail: err.Error()}
	}
	return Response{Status: StatusUnknownError, Detail: err.Error()}
}
