// Package workbook refreshes the consolidated spreadsheet that links to the
// exported artifacts, using a headless LibreOffice instance.
package workbook

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Refresher recalculates a workbook by round-tripping it through soffice.
type Refresher struct {
	soffice string
	timeout time.Duration
	run     Runner
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithRunner replaces the command runner (for testing).
func WithRunner(r Runner) Option {
	return func(rf *Refresher) {
		rf.run = r
	}
}

// New creates a Refresher invoking the soffice binary at sofficePath.
func New(sofficePath string, timeout time.Duration, opts ...Option) *Refresher {
	if sofficePath == "" {
		sofficePath = "soffice"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r := &Refresher{soffice: sofficePath, timeout: timeout, run: ExecRunner}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh opens the workbook at path headlessly in a profile that forces
// formula recalculation and link updates on load, then writes the
// converted result back over path. A missing workbook
// is not an error: Refresh reports false and does nothing.
func (r *Refresher) Refresh(ctx context.Context, path string) (bool, error) {
	log := zap.L().With(zap.String("component", "workbook"), zap.String("path", path))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("workbook: file not found, skipping refresh")
			return false, nil
		}
		return false, eris.Wrapf(err, "workbook: stat %s", path)
	}

	work, err := os.MkdirTemp("", "workbook-refresh-*")
	if err != nil {
		return false, eris.Wrap(err, "workbook: create work dir")
	}
	defer os.RemoveAll(work) //nolint:errcheck

	profile := filepath.Join(work, "profile")
	if err := writeProfile(profile); err != nil {
		return false, err
	}

	outDir := filepath.Join(work, "out")
	args := []string{
		"--headless",
		"--norestore",
		"--nolockcheck",
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--convert-to", "xlsx:Calc MS Excel 2007 XML",
		"--outdir", outDir,
		path,
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	out, err := r.run(runCtx, r.soffice, args...)
	if err != nil {
		return false, eris.Wrapf(err, "workbook: %s failed: %s", r.soffice, strings.TrimSpace(string(out)))
	}

	converted := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".xlsx")
	data, err := os.ReadFile(converted)
	if err != nil {
		return false, eris.Wrapf(err, "workbook: no converted output: %s", strings.TrimSpace(string(out)))
	}

	if err := replaceFile(path, data); err != nil {
		return false, err
	}

	log.Info("workbook: refreshed", zap.Duration("elapsed", time.Since(started)))
	return true, nil
}

// replaceFile writes data next to path and renames it over path.
func replaceFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "workbook: stat %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "workbook: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "workbook: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "workbook: close temp file")
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "workbook: chmod temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "workbook: replace %s", path)
	}
	return nil
}
