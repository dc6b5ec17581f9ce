// Package telemetry builds backup status records and ships them to a
// log collector (typically a Logstash tcp input) over a raw TCP connection.
//
// One JSON object is written per connection with no framing; the collector
// relies on the connection boundary to delimit records. The shared secret
// travels in plaintext inside every record.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MacJediWizard/walship/internal/backup"
)

// ProtocolVersion is the record format version sent to the collector.
const ProtocolVersion = "1"

// TimestampFormat is the UTC millisecond timestamp layout used in records.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Record is the envelope sent to the collector.
type Record struct {
	Timestamp string   `json:"timestamp"`
	IndexName string   `json:"index_name"`
	Version   string   `json:"version"`
	Password  string   `json:"password"`
	Host      string   `json:"host"`
	Message   *Message `json:"message"`
}

// Message describes one backup run.
type Message struct {
	Source    string  `json:"source"`
	Filename  string  `json:"filename"`
	Dst       string  `json:"dst"`
	Error     string  `json:"error"`
	OrigSize  uint64  `json:"orig_size"`
	BackSize  uint64  `json:"back_size"`
	TimeSpent float64 `json:"time_spent"`
}

// BuildRecord assembles the record for a finished job. It has no side effects.
func BuildRecord(job backup.Job, outcome backup.Outcome, start, now time.Time) Record {
	msg := &Message{
		Source:    job.ReportedSource(),
		Filename:  job.LogicalName(),
		Dst:       job.DestDir,
		TimeSpent: now.Sub(start).Seconds(),
	}
	if outcome.Failed() {
		msg.Error = outcome.Message
	} else {
		msg.OrigSize = outcome.SourceBytes
		msg.BackSize = outcome.ResultBytes
	}

	return Record{
		Timestamp: now.UTC().Format(TimestampFormat),
		IndexName: job.IndexName,
		Version:   ProtocolVersion,
		Password:  job.Password,
		Host:      job.SourceHost,
		Message:   msg,
	}
}

// Encode serializes the record. A record always holds representable values,
// so a marshal failure is a programming error and panics.
func (r Record) Encode() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		panic(fmt.Sprintf("telemetry: encode record: %v", err))
	}
	return data
}
