package snapshot

import (
	"fmt"
	"math"
	"sort"

	"github.com/xtxerr/gemrate/internal/series"
	"github.com/xtxerr/gemrate/internal/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// Payload encoding (protobuf wire format, all integers zigzag varints):
//
//	message Snapshot {
//	  int32  kind        = 1;
//	  sint64 cursor      = 2; // absent before the first tick
//	  repeated Entry raw    = 3;
//	  repeated Entry daily  = 4;
//	  repeated Entry weekly = 5;
//	  repeated Bucket hours = 6;
//	  repeated Tick day_window  = 7;
//	  repeated Tick week_window = 8;
//	  sint64 saved_at    = 9;
//	}
//	message Entry  { sint64 ts = 1; double value = 2; }
//	message Bucket { sint64 hour = 1; repeated sint64 ts = 2 [packed]; }
//	message Tick   { sint64 ts = 1; sint64 rate = 2; }
const (
	fieldKind       protowire.Number = 1
	fieldCursor     protowire.Number = 2
	fieldRaw        protowire.Number = 3
	fieldDaily      protowire.Number = 4
	fieldWeekly     protowire.Number = 5
	fieldHours      protowire.Number = 6
	fieldDayWindow  protowire.Number = 7
	fieldWeekWindow protowire.Number = 8
	fieldSavedAt    protowire.Number = 9
)

// Snapshot is one persisted dataset.
type Snapshot struct {
	Kind    types.Kind
	SavedAt int64
	State   series.State
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendEntries(b []byte, num protowire.Number, entries []series.Entry) []byte {
	var msg []byte
	for _, e := range entries {
		msg = msg[:0]
		msg = appendSint(msg, 1, e.Timestamp)
		msg = protowire.AppendTag(msg, 2, protowire.Fixed64Type)
		msg = protowire.AppendFixed64(msg, math.Float64bits(e.Value))

		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b
}

func appendTicks(b []byte, num protowire.Number, ticks []types.Tick) []byte {
	var msg []byte
	for _, t := range ticks {
		msg = msg[:0]
		msg = appendSint(msg, 1, t.Timestamp)
		msg = appendSint(msg, 2, t.Rate)

		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b
}

func appendHours(b []byte, hours map[int64][]int64) []byte {
	keys := make([]int64, 0, len(hours))
	for h := range hours {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var msg, packed []byte
	for _, h := range keys {
		packed = packed[:0]
		for _, ts := range hours[h] {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(ts))
		}

		msg = msg[:0]
		msg = appendSint(msg, 1, h)
		msg = protowire.AppendTag(msg, 2, protowire.BytesType)
		msg = protowire.AppendBytes(msg, packed)

		b = protowire.AppendTag(b, fieldHours, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b
}

// encode serializes a snapshot payload.
func encode(s *Snapshot) []byte {
	st := &s.State
	b := make([]byte, 0, 64+len(st.Raw)*24+len(st.WeekWindow)*12)

	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Kind))
	if st.Cursor != nil {
		b = appendSint(b, fieldCursor, *st.Cursor)
	}
	b = appendEntries(b, fieldRaw, st.Raw)
	b = appendEntries(b, fieldDaily, st.Daily)
	b = appendEntries(b, fieldWeekly, st.Weekly)
	b = appendHours(b, st.Hours)
	b = appendTicks(b, fieldDayWindow, st.DayWindow)
	b = appendTicks(b, fieldWeekWindow, st.WeekWindow)
	b = appendSint(b, fieldSavedAt, s.SavedAt)
	return b
}

// fieldIter walks the fields of one message.
type fieldIter struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
	err error
}

func (it *fieldIter) next() bool {
	if it.err != nil || len(it.b) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return false
	}
	it.b = it.b[n:]
	it.num, it.typ = num, typ
	return true
}

func (it *fieldIter) sint() int64 {
	if it.typ != protowire.VarintType {
		it.err = fmt.Errorf("field %d: expected varint, got wire type %d", it.num, it.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return 0
	}
	it.b = it.b[n:]
	return protowire.DecodeZigZag(v)
}

func (it *fieldIter) uvarint() uint64 {
	if it.typ != protowire.VarintType {
		it.err = fmt.Errorf("field %d: expected varint, got wire type %d", it.num, it.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return 0
	}
	it.b = it.b[n:]
	return v
}

func (it *fieldIter) double() float64 {
	if it.typ != protowire.Fixed64Type {
		it.err = fmt.Errorf("field %d: expected fixed64, got wire type %d", it.num, it.typ)
		return 0
	}
	v, n := protowire.ConsumeFixed64(it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return 0
	}
	it.b = it.b[n:]
	return math.Float64frombits(v)
}

func (it *fieldIter) bytes() []byte {
	if it.typ != protowire.BytesType {
		it.err = fmt.Errorf("field %d: expected bytes, got wire type %d", it.num, it.typ)
		return nil
	}
	v, n := protowire.ConsumeBytes(it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return nil
	}
	it.b = it.b[n:]
	return v
}

func (it *fieldIter) skip() {
	n := protowire.ConsumeFieldValue(it.num, it.typ, it.b)
	if n < 0 {
		it.err = protowire.ParseError(n)
		return
	}
	it.b = it.b[n:]
}

func decodeEntry(b []byte) (series.Entry, error) {
	var e series.Entry
	it := fieldIter{b: b}
	for it.next() {
		switch it.num {
		case 1:
			e.Timestamp = it.sint()
		case 2:
			e.Value = it.double()
		default:
			it.skip()
		}
	}
	return e, it.err
}

func decodeTick(b []byte) (types.Tick, error) {
	var t types.Tick
	it := fieldIter{b: b}
	for it.next() {
		switch it.num {
		case 1:
			t.Timestamp = it.sint()
		case 2:
			t.Rate = it.sint()
		default:
			it.skip()
		}
	}
	return t, it.err
}

func decodeBucket(b []byte) (int64, []int64, error) {
	var hour int64
	var members []int64
	it := fieldIter{b: b}
	for it.next() {
		switch it.num {
		case 1:
			hour = it.sint()
		case 2:
			packed := it.bytes()
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return 0, nil, protowire.ParseError(n)
				}
				members = append(members, protowire.DecodeZigZag(v))
				packed = packed[n:]
			}
		default:
			it.skip()
		}
	}
	return hour, members, it.err
}

// decode parses a snapshot payload.
func decode(b []byte) (*Snapshot, error) {
	s := &Snapshot{State: series.State{Hours: make(map[int64][]int64)}}
	st := &s.State

	it := fieldIter{b: b}
	for it.next() {
		var err error
		switch it.num {
		case fieldKind:
			s.Kind = types.Kind(it.uvarint())
		case fieldCursor:
			c := it.sint()
			st.Cursor = &c
		case fieldRaw, fieldDaily, fieldWeekly:
			num := it.num
			var e series.Entry
			if e, err = decodeEntry(it.bytes()); err == nil {
				switch num {
				case fieldRaw:
					st.Raw = append(st.Raw, e)
				case fieldDaily:
					st.Daily = append(st.Daily, e)
				default:
					st.Weekly = append(st.Weekly, e)
				}
			}
		case fieldHours:
			var h int64
			var members []int64
			if h, members, err = decodeBucket(it.bytes()); err == nil {
				st.Hours[h] = members
			}
		case fieldDayWindow, fieldWeekWindow:
			num := it.num
			var t types.Tick
			if t, err = decodeTick(it.bytes()); err == nil {
				if num == fieldDayWindow {
					st.DayWindow = append(st.DayWindow, t)
				} else {
					st.WeekWindow = append(st.WeekWindow, t)
				}
			}
		case fieldSavedAt:
			s.SavedAt = it.sint()
		default:
			it.skip()
		}
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", it.num, err)
		}
	}
	if it.err != nil {
		return nil, it.err
	}
	return s, nil
}
