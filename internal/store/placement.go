package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedPlacement = errors.New("malformed comment placement")

// Placement is the ordered list of top-level comments on a post, each with
// its ordered replies. Replies never nest further.
type Placement []TopLevel

type TopLevel struct {
	ID      string
	Replies []Reply
}

type Reply struct {
	ID string
}

// Find returns the index of the top-level entry with id, or -1.
func (p Placement) Find(id string) int {
	for i, top := range p {
		if top.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (p Placement) Clone() Placement {
	out := make(Placement, len(p))
	for i, top := range p {
		replies := make([]Reply, len(top.Replies))
		copy(replies, top.Replies)
		out[i] = TopLevel{ID: top.ID, Replies: replies}
	}
	return out
}

// MarshalJSON writes the persisted pair shape: [["top", ["r1", "r2"]], ...].
func (p Placement) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]TopLevel(p))
}

func (p *Placement) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Placement{}
		return nil
	}
	var entries []TopLevel
	if err := json.Unmarshal(data, &entries); err != nil {
		if errors.Is(err, ErrMalformedPlacement) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformedPlacement, err)
	}
	*p = Placement(entries)
	if *p == nil {
		*p = Placement{}
	}
	return nil
}

func (t TopLevel) MarshalJSON() ([]byte, error) {
	ids := make([]string, len(t.Replies))
	for i, reply := range t.Replies {
		ids[i] = reply.ID
	}
	return json.Marshal([]any{t.ID, ids})
}

func (t *TopLevel) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return fmt.Errorf("%w: entry is not a [id, replies] pair", ErrMalformedPlacement)
	}
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil || id == "" {
		return fmt.Errorf("%w: top-level id must be a non-empty string", ErrMalformedPlacement)
	}
	var replyIDs []string
	if err := json.Unmarshal(pair[1], &replyIDs); err != nil {
		return fmt.Errorf("%w: replies of %s must be a list of ids", ErrMalformedPlacement, id)
	}
	replies := make([]Reply, 0, len(replyIDs))
	for _, replyID := range replyIDs {
		if replyID == "" {
			return fmt.Errorf("%w: empty reply id under %s", ErrMalformedPlacement, id)
		}
		replies = append(replies, Reply{ID: replyID})
	}
	t.ID = id
	t.Replies = replies
	return nil
}

// Value stores the placement as JSONB.
func (p Placement) Value() (driver.Value, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *Placement) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Placement{}
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrMalformedPlacement, src)
	}
}
