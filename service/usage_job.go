package service

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log/level"
)

// SpaceUsage is one memory space's occupancy at snapshot time.
type SpaceUsage struct {
	Space    string
	InUse    uint64
	Capacity uint64
}

// UsageSnapshot is the periodic occupancy record written by the
// snapshot job. Seq is the trace journal position at snapshot time;
// segments at or before it are dropped after a successful write.
type UsageSnapshot struct {
	Seq     uint64
	Created time.Time
	Spaces  []SpaceUsage
}

const snapshotFile = "usage.bin"

func WriteUsageSnapshot(dir string, snap UsageSnapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, snapshotFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(&snap)
}

func LoadUsageSnapshot(dir string) (UsageSnapshot, error) {
	f, err := os.Open(filepath.Join(dir, snapshotFile))
	if err != nil {
		return UsageSnapshot{}, err
	}
	defer f.Close()

	var snap UsageSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return UsageSnapshot{}, err
	}
	return snap, nil
}

// StartUsageSnapshotJob periodically snapshots occupancy (as reported
// by usage) and truncates trace segments already covered by the
// snapshot. Runs until ctx is cancelled.
func (s *WorkspaceService) StartUsageSnapshotJob(
	ctx context.Context,
	dir string,
	interval time.Duration,
	usage func() []SpaceUsage,
) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				snap := UsageSnapshot{Created: time.Now(), Spaces: usage()}
				if s.journal != nil {
					snap.Seq = s.journal.LastSeq()
				}
				if err := WriteUsageSnapshot(dir, snap); err != nil {
					level.Warn(s.logger).Log("msg", "usage snapshot failed", "err", err)
					continue
				}
				if s.journal != nil {
					if err := s.journal.TruncateBefore(snap.Seq); err != nil {
						level.Warn(s.logger).Log("msg", "trace truncation failed", "err", err)
					}
				}
			}
		}
	}()
}
