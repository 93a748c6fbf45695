package pdu

import (
	"sync"
)

type partKey struct {
	number string
	ref    int
	count  int
}

// Assembler joins the parts of concatenated messages. Parts are matched on
// sender, reference and part count and may arrive in any order. It is safe
// for concurrent use.
type Assembler struct {
	mu    sync.Mutex
	parts map[partKey]map[int]*Message
}

func NewAssembler() *Assembler {
	return &Assembler{parts: make(map[partKey]map[int]*Message)}
}

// Add stores one part. When it completes a message the merged message is
// returned with ok set. Messages without concatenation metadata, or with
// metadata that cannot be matched, are returned unchanged.
func (a *Assembler) Add(m *Message) (merged *Message, ok bool) {
	c := m.Concat
	if c == nil || c.Count <= 1 || c.Sequence < 1 || c.Sequence > c.Count {
		return m, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := partKey{number: m.Number, ref: c.Reference, count: c.Count}
	set := a.parts[key]
	if set == nil {
		set = make(map[int]*Message, c.Count)
		a.parts[key] = set
	}
	set[c.Sequence] = m
	if len(set) < c.Count {
		return nil, false
	}
	delete(a.parts, key)
	return join(set, c.Count), true
}

// Pending returns the number of messages still waiting for parts.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.parts)
}

func join(set map[int]*Message, count int) *Message {
	first := *set[1]
	first.Concat = nil
	var text []byte
	var data []byte
	for seq := 1; seq <= count; seq++ {
		text = append(text, set[seq].Text...)
		data = append(data, set[seq].Data...)
	}
	first.Text = string(text)
	first.Data = data
	return &first
}

// Reassemble merges the concatenated messages found in msgs. Complete
// messages are returned in the order their last part appears; parts of
// incomplete messages follow, unchanged and in their original order.
func Reassemble(msgs []*Message) []*Message {
	a := NewAssembler()
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if merged, ok := a.Add(m); ok {
			out = append(out, merged)
		}
	}
	if a.Pending() == 0 {
		return out
	}
	for _, m := range msgs {
		c := m.Concat
		if c == nil {
			continue
		}
		// a reused reference may have merged an earlier part under the same key
		set := a.parts[partKey{number: m.Number, ref: c.Reference, count: c.Count}]
		if set != nil && set[c.Sequence] == m {
			out = append(out, m)
		}
	}
	return out
}
