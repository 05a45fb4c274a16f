package trace

import "time"

type RecordType uint8

const (
	RecordAlloc RecordType = iota
	RecordReady
	RecordWait
	RecordFree
	RecordSyncFail
)

func (t RecordType) String() string {
	switch t {
	case RecordAlloc:
		return "alloc"
	case RecordReady:
		return "ready"
	case RecordWait:
		return "wait"
	case RecordFree:
		return "free"
	case RecordSyncFail:
		return "syncfail"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func newRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
