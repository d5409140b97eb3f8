package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageID is the server-assigned id of a message. Zero means unacknowledged.
type MessageID uint64

// Ordinal positions a message inside a conversation.
//
// Committed ordinals carry Seq == 0 and Base equal to the server message id.
// Pending ordinals (Seq > 0) sort after Base and before Base+1, so a message
// being sent always lands after everything known when it was composed.
type Ordinal struct {
	Base uint64
	Seq  uint64
}

// CommittedOrdinal returns the ordinal for a server-acknowledged message.
func CommittedOrdinal(id MessageID) Ordinal {
	return Ordinal{Base: uint64(id)}
}

// IsZero reports whether o is the zero ordinal (no position).
func (o Ordinal) IsZero() bool {
	return o.Base == 0 && o.Seq == 0
}

// IsPending reports whether o belongs to a locally pending message.
func (o Ordinal) IsPending() bool {
	return o.Seq > 0
}

// Floor returns the integral part of o. Only floored ordinals are ever sent
// to the backend.
func (o Ordinal) Floor() MessageID {
	return MessageID(o.Base)
}

// Compare returns -1, 0 or 1.
func (o Ordinal) Compare(p Ordinal) int {
	switch {
	case o.Base < p.Base:
		return -1
	case o.Base > p.Base:
		return 1
	case o.Seq < p.Seq:
		return -1
	case o.Seq > p.Seq:
		return 1
	}
	return 0
}

// Less reports whether o sorts before p.
func (o Ordinal) Less(p Ordinal) bool {
	return o.Compare(p) < 0
}

// NextPending returns the pending ordinal directly after o.
func (o Ordinal) NextPending() Ordinal {
	return Ordinal{Base: o.Base, Seq: o.Seq + 1}
}

func (o Ordinal) String() string {
	if o.Seq == 0 {
		return strconv.FormatUint(o.Base, 10)
	}
	return strconv.FormatUint(o.Base, 10) + "." + strconv.FormatUint(o.Seq, 10)
}

// ParseOrdinal parses the String form of an ordinal.
func ParseOrdinal(s string) (Ordinal, error) {
	base, seq, found := strings.Cut(s, ".")
	b, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return Ordinal{}, fmt.Errorf("parse ordinal %q: %w", s, err)
	}
	o := Ordinal{Base: b}
	if found {
		n, err := strconv.ParseUint(seq, 10, 64)
		if err != nil || n == 0 {
			return Ordinal{}, fmt.Errorf("parse ordinal %q: bad pending sequence", s)
		}
		o.Seq = n
	}
	return o, nil
}

// MarshalText encodes o in its String form.
func (o Ordinal) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses the String form.
func (o *Ordinal) UnmarshalText(b []byte) error {
	p, err := ParseOrdinal(string(b))
	if err != nil {
		return err
	}
	*o = p
	return nil
}
