package producer

import "encoding/json"

// ticketKind discriminates the three shapes of opaque ticket payload the
// producer issues, per the Ticket data-model entry: a plain statement, a
// reference to a prepared statement, or one shard of a split plan.
type ticketKind string

const (
	ticketStatement ticketKind = "STATEMENT"
	ticketPrepared  ticketKind = "PREPARED"
	ticketShard     ticketKind = "SPLIT_SHARD"
)

// ticket is the server-only payload embedded in every Flight ticket the
// producer hands out. It is never interpreted by clients; encoding it as
// JSON rather than a bespoke binary format keeps it simple to extend and
// costs nothing since opacity, not compactness, is the requirement.
type ticket struct {
	Kind      ticketKind `json:"kind"`
	SQL       string     `json:"sql,omitempty"`
	Handle    string     `json:"handle,omitempty"`
	FetchSize int        `json:"fetchSize,omitempty"`
	Owner     string     `json:"owner"`
}

func encodeTicket(t ticket) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTicket(b []byte) (ticket, error) {
	var t ticket
	err := json.Unmarshal(b, &t)
	return t, err
}
