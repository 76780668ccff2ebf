package producer

import "encoding/json"

// command is the JSON payload the producer expects inside every
// FlightDescriptor.Cmd. The server defines both ends of the
// descriptor/ticket contract, so a plain JSON envelope serves the same
// opacity requirement as a generated protobuf Command message would,
// without depending on an internal, unimportable schema package.
type command struct {
	Op      string `json:"op"`
	SQL     string `json:"sql,omitempty"`
	Handle  string `json:"handle,omitempty"`
	Catalog string `json:"catalog,omitempty"`
	Schema  string `json:"schema,omitempty"`
	Path    string `json:"path,omitempty"`
}

const (
	opStatement       = "statement"
	opPreparedExecute = "prepared_execute"
	opCatalogs        = "catalogs"
	opSchemas         = "schemas"
	opTables          = "tables"
	opIngest          = "ingest"
)

func decodeCommand(b []byte) (command, error) {
	var c command
	err := json.Unmarshal(b, &c)
	return c, err
}

func encodeCommand(c command) []byte {
	b, _ := json.Marshal(c)
	return b
}
