package wire

import (
	"github.com/busreg/busreg/notify"
)

// EncodeEvent serializes a notify.Event for an OpNotify push frame:
// kind(u32) + old_owner(u64) + new_owner(u64) + flags(u32) + name(string).
func EncodeEvent(e notify.Event) []byte {
	buf := PutUint32(nil, uint32(e.Kind))
	buf = PutUint64(buf, e.OldOwner)
	buf = PutUint64(buf, e.NewOwner)
	buf = PutUint32(buf, e.Flags)
	buf = PutString(buf, e.Name)
	return buf
}

// DecodeEvent decodes a buffer written by EncodeEvent.
func DecodeEvent(buf []byte) (notify.Event, error) {
	kind, buf, err := GetUint32(buf)
	if err != nil {
		return notify.Event{}, err
	}
	old, buf, err := GetUint64(buf)
	if err != nil {
		return notify.Event{}, err
	}
	newOwner, buf, err := GetUint64(buf)
	if err != nil {
		return notify.Event{}, err
	}
	flags, buf, err := GetUint32(buf)
	if err != nil {
		return notify.Event{}, err
	}
	name, _, err := GetString(buf)
	if err != nil {
		return notify.Event{}, err
	}
	return notify.Event{Kind: notify.Kind(kind), OldOwner: old, NewOwner: newOwner, Flags: flags, Name: name}, nil
}
