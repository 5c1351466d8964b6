package runstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	locksDirName   = "locks"
	lockOwnerFile  = "owner.json"
	lockKeyHexSize = 16
)

// DestinationLock keeps two splitcat processes from writing the same
// destination. It lives under the state dir so it never matches a part prefix.
type DestinationLock struct {
	lockDir string
}

type lockOwner struct {
	PID         int    `json:"pid"`
	CreatedAt   string `json:"created_at"`
	Hostname    string `json:"hostname,omitempty"`
	Destination string `json:"destination"`
}

func destinationLockDir(stateDir, destination string) string {
	abs, err := filepath.Abs(destination)
	if err != nil {
		abs = filepath.Clean(destination)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(stateDir, locksDirName, hex.EncodeToString(sum[:])[:lockKeyHexSize]+".lock")
}

// removeLockPath is swapped in tests to simulate a lock that cannot be cleared.
var removeLockPath = os.Remove

func AcquireDestinationLock(stateDir, destination string) (DestinationLock, error) {
	return acquireDestinationLock(stateDir, destination, true)
}

// acquireDestinationLock reclaims a stale lock at most once per call.
func acquireDestinationLock(stateDir, destination string, reclaim bool) (DestinationLock, error) {
	target := strings.TrimSpace(destination)
	if target == "" {
		return DestinationLock{}, fmt.Errorf("destination is required")
	}
	if strings.TrimSpace(stateDir) == "" {
		return DestinationLock{}, fmt.Errorf("state directory is required")
	}

	lockDir := destinationLockDir(stateDir, target)
	if err := Mkdir(filepath.Dir(lockDir)); err != nil {
		return DestinationLock{}, err
	}

	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return DestinationLock{}, fmt.Errorf("acquire destination lock for %s: %w", target, err)
		}
		ownerPath := filepath.Join(lockDir, lockOwnerFile)
		var owner lockOwner
		readErr := ReadJSON(ownerPath, &owner)
		if reclaim && readErr == nil && ownerIsStale(owner) {
			_ = removeLockPath(ownerPath)
			_ = removeLockPath(lockDir)
			return acquireDestinationLock(stateDir, destination, false)
		}
		if readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
			return DestinationLock{}, fmt.Errorf(
				"destination is locked: %s (pid=%d created_at=%s host=%s)",
				target, owner.PID, owner.CreatedAt, owner.Hostname,
			)
		}
		return DestinationLock{}, fmt.Errorf("destination is locked: %s", target)
	}

	owner := lockOwner{
		PID:         os.Getpid(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Hostname:    hostnameOrUnknown(),
		Destination: target,
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return DestinationLock{}, fmt.Errorf("write destination lock owner for %s: %w", target, err)
	}

	return DestinationLock{lockDir: lockDir}, nil
}

func (l DestinationLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release destination lock %s: %w", l.lockDir, err)
	}
	return nil
}

// ownerIsStale is true only for a lock left by a dead process on this host.
func ownerIsStale(owner lockOwner) bool {
	if owner.PID <= 0 || owner.Hostname != hostnameOrUnknown() {
		return false
	}
	if owner.PID == os.Getpid() {
		return false
	}
	return !processAlive(owner.PID)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
