package runner

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

var ErrRunInProgress = eris.New("runner: another run holds the lock")

// acquire takes the per-data-dir run lock without blocking. The returned
// release is always safe to call.
func acquire(dataDir string) (release func(), err error) {
	if dataDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "runner: create %s", dataDir)
	}
	fl := flock.New(filepath.Join(dataDir, "run.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "runner: lock")
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() { _ = fl.Unlock() }, nil
}
