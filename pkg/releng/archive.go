package releng

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/stores"
	"github.com/devforge/devforge/pkg/telemetry"
)

// ArchiveRequest describes one archive build. The fields mirror the
// command's six positional arguments, all required.
type ArchiveRequest struct {
	// WorkingDir is the scratch directory the repository is cloned
	// into. A failed run may leave the clone behind; callers discard it.
	WorkingDir string

	// DestPath is where the archive lands. The parent directory is
	// created if absent; an existing file is overwritten.
	DestPath string

	// Project is the project name, used as the clone directory name.
	Project string

	// Prefix is the single top-level directory all paths inside the
	// archive are rooted at.
	Prefix string

	// GitURL is the repository clone URL.
	GitURL string

	// Treeish is the branch, tag, or commit to archive.
	Treeish string
}

func (r *ArchiveRequest) validate() error {
	missing := []string{}
	for name, value := range map[string]string{
		"working_dir": r.WorkingDir,
		"dest_path":   r.DestPath,
		"project":     r.Project,
		"prefix":      r.Prefix,
		"git_url":     r.GitURL,
		"treeish":     r.Treeish,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return engine.NewValidationError(
			fmt.Sprintf("archive request missing: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

// ArchiveResult is the outcome of a successful build.
type ArchiveResult struct {
	// CommitHash is the revision the treeish resolved to.
	CommitHash string

	// DestPath is the produced archive.
	DestPath string

	// Duration is the wall time of the build.
	Duration time.Duration
}

// Archiver builds reproducible release archives from git treeishes.
type Archiver struct {
	store     stores.Store
	telemetry *telemetry.Telemetry
	logger    *telemetry.Logger
	stdout    io.Writer
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithStore enables archive build history persistence.
func WithStore(store stores.Store) ArchiverOption {
	return func(a *Archiver) { a.store = store }
}

// WithTelemetry enables tracing and metrics.
func WithTelemetry(tel *telemetry.Telemetry) ArchiverOption {
	return func(a *Archiver) { a.telemetry = tel }
}

// WithStdout redirects the commit hash output. Defaults to os.Stdout;
// the hash is the only thing written there.
func WithStdout(w io.Writer) ArchiverOption {
	return func(a *Archiver) { a.stdout = w }
}

// NewArchiver creates an archiver.
func NewArchiver(opts ...ArchiverOption) *Archiver {
	a := &Archiver{stdout: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}

	if a.telemetry != nil {
		a.logger = a.telemetry.Logger.NewComponentLogger("archiver")
	} else {
		// Default config logs to stderr and cannot fail.
		logger, _ := telemetry.NewLogger(telemetry.DefaultConfig().Logging)
		a.logger = logger.NewComponentLogger("archiver")
	}

	return a
}

// Build clones the repository, checks out the treeish, resolves the
// commit hash (printed to stdout for traceability), and produces a
// gzipped tarball at the destination with all paths under the prefix.
// The first failing command aborts the build; nothing is cleaned up, so
// a failed run can leave a stale clone in the working directory.
func (a *Archiver) Build(ctx context.Context, req *ArchiveRequest) (*ArchiveResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	var span trace.Span
	if a.telemetry != nil && a.telemetry.Tracer != nil {
		ctx, span = a.telemetry.Tracer.StartArchiveSpan(ctx, req.Project, req.Treeish)
		defer span.End()
	}

	archiveID := uuid.New().String()
	a.recordStart(ctx, archiveID, req)

	result, err := a.build(ctx, req)

	status := stores.RunStatusSucceeded
	if err != nil {
		status = stores.RunStatusFailed
	}

	a.recordEnd(ctx, archiveID, status, result, err)

	if a.telemetry != nil && a.telemetry.Metrics != nil {
		a.telemetry.Metrics.RecordArchiveBuilt(string(status), time.Since(start))
	}
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}

	if err != nil {
		a.logger.WithError(err).Errorf("archive build failed for %s at %s", req.Project, req.Treeish)
		return nil, err
	}

	result.Duration = time.Since(start)

	a.logger.WithField("commit", result.CommitHash).
		Infof("archive for %s built at %s in %s", req.Project, result.DestPath, result.Duration.Round(time.Millisecond))

	return result, nil
}

func (a *Archiver) build(ctx context.Context, req *ArchiveRequest) (*ArchiveResult, error) {
	if err := os.MkdirAll(req.WorkingDir, 0755); err != nil {
		return nil, archiveErr("failed to create working directory", err)
	}

	cloneDir := filepath.Join(req.WorkingDir, req.Project)
	if _, err := os.Stat(cloneDir); err == nil {
		// A leftover clone from a failed run; a fresh clone must not
		// inherit its state.
		if err := os.RemoveAll(cloneDir); err != nil {
			return nil, archiveErr("failed to remove stale clone", err)
		}
	}

	if _, err := a.git(ctx, req.WorkingDir, "clone", req.GitURL, req.Project); err != nil {
		return nil, archiveErr(fmt.Sprintf("failed to clone %s", req.GitURL), err)
	}

	if _, err := a.git(ctx, cloneDir, "checkout", req.Treeish); err != nil {
		return nil, archiveErr(fmt.Sprintf("failed to check out %s", req.Treeish), err)
	}

	hash, err := a.git(ctx, cloneDir, "rev-parse", "HEAD")
	if err != nil {
		return nil, archiveErr("failed to resolve commit hash", err)
	}
	commitHash := strings.TrimSpace(hash)

	// The hash is the build's traceability record and the only stdout
	// output.
	fmt.Fprintln(a.stdout, commitHash)

	if err := os.MkdirAll(filepath.Dir(req.DestPath), 0755); err != nil {
		return nil, archiveErr("failed to create destination directory", err)
	}

	_, err = a.git(ctx, cloneDir, "archive",
		"--format=tar.gz",
		fmt.Sprintf("--prefix=%s/", req.Prefix),
		fmt.Sprintf("--output=%s", req.DestPath),
		"HEAD")
	if err != nil {
		return nil, archiveErr("failed to produce archive", err)
	}

	return &ArchiveResult{
		CommitHash: commitHash,
		DestPath:   req.DestPath,
	}, nil
}

// git runs a git command in dir, returning combined stdout. Stderr is
// folded into the error.
func (a *Archiver) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debugf("running git %s in %s", strings.Join(args, " "), dir)

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", err, msg)
	}

	return stdout.String(), nil
}

func archiveErr(message string, err error) error {
	return engine.NewPermanentError(message, err).WithCode(engine.ErrCodeArchiveFailed)
}

func (a *Archiver) recordStart(ctx context.Context, id string, req *ArchiveRequest) {
	if a.store == nil {
		return
	}

	err := a.store.CreateArchive(ctx, &stores.Archive{
		ID:       id,
		Project:  req.Project,
		GitURL:   req.GitURL,
		Treeish:  req.Treeish,
		DestPath: req.DestPath,
		Prefix:   req.Prefix,
		Status:   stores.RunStatusRunning,
	})
	if err != nil {
		a.logger.WithError(err).Warn("failed to persist archive record")
	}
}

func (a *Archiver) recordEnd(ctx context.Context, id string, status stores.RunStatus, result *ArchiveResult, buildErr error) {
	if a.store == nil {
		return
	}

	var commitHash, errMsg *string
	if result != nil && result.CommitHash != "" {
		commitHash = &result.CommitHash
	}
	if buildErr != nil {
		msg := buildErr.Error()
		errMsg = &msg
	}

	if err := a.store.UpdateArchiveStatus(ctx, id, status, commitHash, errMsg); err != nil {
		a.logger.WithError(err).Warn("failed to update archive record")
	}
}
