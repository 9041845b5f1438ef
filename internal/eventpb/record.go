// ============================================================================
// Run Loader Record Variant Surface
// ============================================================================
//
// Package: internal/eventpb
// File: record.go
// Purpose: The decoded-record shape an event file reader hands to the loader
//
// This mirrors the upstream tensorboard.Event wire message (FileVersion,
// GraphDef, TaggedRunMetadata, Summary) as a plain Go tagged union instead of
// a protobuf-generated type: spec.md treats "protobuf message shapes" as an
// external collaborator consumed pre-decoded, and producing genuine
// protoc-gen-go output without running protoc is not something this module
// can do honestly (see DESIGN.md). internal/eventfile is the concrete reader
// that decodes bytes into a Record.
//
// ============================================================================

package eventpb

import "github.com/ChuLiYu/run-loader/pkg/types"

// Kind discriminates the Record tagged union.
type Kind int

const (
	// KindUnknown covers variants the loader doesn't recognize; only
	// start_time is affected when one is seen.
	KindUnknown Kind = iota
	KindFileVersion
	KindGraphDef
	KindTaggedRunMetadata
	KindSummary
)

// Record is one decoded unit from an event file: wall_time, step, and a
// payload variant.
type Record struct {
	Step     int64   `json:"step"`
	WallTime float64 `json:"wall_time"`
	Checksum uint32  `json:"checksum"`
	Kind     Kind    `json:"kind"`

	FileVersion        string              `json:"file_version,omitempty"`
	GraphDef           []byte              `json:"graph_def,omitempty"`
	TaggedRunMetadata  *TaggedRunMetadata  `json:"tagged_run_metadata,omitempty"`
	Summary            *Summary            `json:"summary,omitempty"`
}

// TaggedRunMetadata carries a run-metadata blob addressed to a user tag.
type TaggedRunMetadata struct {
	Tag         string `json:"tag"`
	RunMetadata []byte `json:"run_metadata"`
}

// Summary carries zero or more tagged values, each independently routed.
type Summary struct {
	Values []SummaryValue `json:"values"`
}

// SummaryValue is one value within a Summary record. Exactly one of Scalar,
// Tensor, or BlobSequence is populated when the value has a "present
// payload"; all nil means the value should be skipped.
type SummaryValue struct {
	Tag      string                  `json:"tag"`
	Metadata *types.SummaryMetadata  `json:"metadata,omitempty"`
	Scalar   *float64                `json:"scalar,omitempty"`
	Tensor   []byte                  `json:"tensor,omitempty"`
	BlobSeq  [][]byte                `json:"blob_sequence,omitempty"`
}

// HasPayload reports whether any of the value's payload variants is present.
func (v SummaryValue) HasPayload() bool {
	return v.Scalar != nil || v.Tensor != nil || v.BlobSeq != nil
}
