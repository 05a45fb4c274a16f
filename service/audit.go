package service

import (
	"wsalloc/domain/workspace"
	"wsalloc/infra/trace"
)

// AuditReport summarizes a trace replay.
type AuditReport struct {
	// Leaked holds regions that were allocated but never freed.
	Leaked []trace.RegionInfo
	// UnsafeFrees holds regions freed after a readiness event was
	// attached but with no wait recorded before the free.
	UnsafeFrees []trace.RegionInfo
	// SyncFailures holds regions whose readiness wait failed; their
	// buffers were deliberately not freed.
	SyncFailures []trace.RegionInfo
}

func (r *AuditReport) Clean() bool {
	return len(r.Leaked) == 0 && len(r.UnsafeFrees) == 0 && len(r.SyncFailures) == 0
}

type regionKey struct {
	ws    uint64
	space workspace.SpaceID
}

type regionState struct {
	info   trace.RegionInfo
	ready  bool
	waited bool
}

// Audit replays the trace journal at dir and cross-checks the
// lifecycle of every region: each alloc must eventually see a free,
// and a free on a region with an attached readiness event must be
// preceded by a wait.
func Audit(dir string) (*AuditReport, error) {
	live := make(map[regionKey]*regionState)
	report := &AuditReport{}

	_, err := trace.Replay(dir, func(rec *trace.Record) error {
		info, err := trace.DecodeRegionInfo(rec.Data)
		if err != nil {
			return err
		}
		key := regionKey{ws: info.Workspace, space: info.Space}

		switch rec.Type {
		case trace.RecordAlloc:
			live[key] = &regionState{info: info}
		case trace.RecordReady:
			if st := live[key]; st != nil {
				st.ready = true
				st.waited = false
			}
		case trace.RecordWait:
			if st := live[key]; st != nil {
				st.waited = true
			}
		case trace.RecordFree:
			if st := live[key]; st != nil {
				if st.ready && !st.waited {
					report.UnsafeFrees = append(report.UnsafeFrees, st.info)
				}
				delete(live, key)
			}
		case trace.RecordSyncFail:
			report.SyncFailures = append(report.SyncFailures, info)
			// The buffer stays live on purpose; it shows up as leaked
			// only if nothing ever freed it, which is the honest state.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, st := range live {
		report.Leaked = append(report.Leaked, st.info)
	}
	return report, nil
}
