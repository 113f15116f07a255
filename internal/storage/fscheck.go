package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// remoteFilesystems are filesystem types on which neither SQLite's locking
// nor flock(2) on the dispatch lock can be trusted.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

var errFSDetectUnsupported = errors.New("filesystem detection unsupported on this platform")

// CheckLocalFilesystem refuses a state or lock path that lives on a remote
// filesystem. The path need not exist yet; its closest existing ancestor is
// inspected. Platforms without detection pass.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, filesystemType)
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	if path == "" {
		return errors.New("state path is empty")
	}

	probe, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}

	fsType, err := detect(probe)
	switch {
	case errors.Is(err, errFSDetectUnsupported):
		return nil
	case err != nil:
		return fmt.Errorf("cannot tell which filesystem holds %q: %w", probe, err)
	case isNetworkFilesystem(fsType):
		return fmt.Errorf("%q is on network filesystem %q where grants and the dispatch lock cannot be locked reliably; move service.state_path to local disk", path, fsType)
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(dir)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("nothing above %q exists", path)
		}
		dir = up
	}
}

func isNetworkFilesystem(fsType string) bool {
	return slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
