// Package export writes decoded FIT results as files: the full message map
// as JSON, an index of message types, and the record stream as tabular
// samples (CSV or parquet).
package export

import "time"

const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"

	MessagesFile = "messages.json"
	IndexFile    = "messages_index.json"
	SourceFile   = "source.fit"
	SummaryFile  = "activity_summary.json"
)

// Options configures an export.
type Options struct {
	// Format of the samples file: parquet (default) or csv.
	Format string
	// SourceName is recorded in the index.
	SourceName string
	// SourceData, when set, is included as source.fit.
	SourceData []byte
	// FTPW enables intensity factor and TSS in the summary when positive.
	FTPW float64
}

// Artifacts holds the generated files by name.
type Artifacts struct {
	Files       map[string][]byte
	SampleCount int
	Warnings    []string
}

// Index summarizes the decoded message types.
type Index struct {
	SourceName   string            `json:"source_name,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
	MessageTypes []MessageType     `json:"message_types"`
	Labels       map[string]string `json:"labels,omitempty"`
	SampleCount  int               `json:"sample_count"`
	SamplesFile  string            `json:"samples_file,omitempty"`
}

// MessageType is one entry of Index.
type MessageType struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Label string `json:"label,omitempty"`
}

// Sample is one row of the record stream.
type Sample struct {
	TSUTCISO     string
	Timestamp    time.Time
	ElapsedS     float64
	PowerW       *float64
	HRBPM        *float64
	CadenceRPM   *float64
	SpeedMPS     *float64
	DistanceM    *float64
	AltitudeM    *float64
	TemperatureC *float64
	LatDeg       *float64
	LonDeg       *float64
	RecordIndex  int
}
