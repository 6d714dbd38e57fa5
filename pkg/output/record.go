package output

import "time"

// Record is one alive host as seen by a queue consumer.
type Record struct {
	Seq        int       `json:"seq"`
	IP         string    `json:"ip"`
	Hostname   string    `json:"hostname,omitzero"`
	Session    int       `json:"session,omitzero"`
	DetectedAt time.Time `json:"detected_at"`
}

// RecordWriter is implemented by every alive-host output format.
type RecordWriter interface {
	Write(rec *Record) error
	Flush() error
	Close() error
	Count() int
}
