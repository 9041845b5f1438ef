// ============================================================================
// Event File Writer
// ============================================================================
//
// Package: internal/eventfile
// File: writer.go
// Purpose: Encode Records as newline-delimited JSON with a CRC32 checksum,
// the write-side counterpart to Reader. Not part of the run-loader core
// (spec.md treats event-file framing as an external collaborator); this
// exists so tests and the disk-backed logdir used by cmd/run-loader have a
// real writer to produce fixtures with, the way the original's test module
// uses a `SummaryWriteExt` trait (write_scalar, write_graph,
// write_tagged_run_metadata) to build its seed-test event files.
//
// ============================================================================

package eventfile

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ChuLiYu/run-loader/internal/eventpb"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

// Writer encodes Records to an underlying stream, one JSON object per line.
type Writer struct {
	stream  io.WriteCloser
	encoder *json.Encoder
	closed  bool
}

// NewWriter wraps an opened stream for writing.
func NewWriter(stream io.WriteCloser) *Writer {
	return &Writer{stream: stream, encoder: json.NewEncoder(stream)}
}

// WriteEvent stamps rec with its checksum and appends it.
func (w *Writer) WriteEvent(rec eventpb.Record) error {
	if w.closed {
		return ErrClosed
	}
	checksum, err := calculateChecksum(rec)
	if err != nil {
		return fmt.Errorf("eventfile: compute checksum: %w", err)
	}
	rec.Checksum = checksum
	return w.encoder.Encode(rec)
}

// Close releases the underlying stream.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.stream.Close()
}

// WriteFileVersion appends a FileVersion record.
func (w *Writer) WriteFileVersion(wallTime types.WallTime, version string) error {
	return w.WriteEvent(eventpb.Record{
		WallTime:    wallTime.Seconds(),
		Kind:        eventpb.KindFileVersion,
		FileVersion: version,
	})
}

// WriteGraphDef appends a GraphDef record at the given step.
func (w *Writer) WriteGraphDef(step types.Step, wallTime types.WallTime, graphBytes []byte) error {
	return w.WriteEvent(eventpb.Record{
		Step:     int64(step),
		WallTime: wallTime.Seconds(),
		Kind:     eventpb.KindGraphDef,
		GraphDef: graphBytes,
	})
}

// WriteTaggedRunMetadata appends a TaggedRunMetadata record at the given step.
func (w *Writer) WriteTaggedRunMetadata(tag types.Tag, step types.Step, wallTime types.WallTime, runMetadata []byte) error {
	return w.WriteEvent(eventpb.Record{
		Step:     int64(step),
		WallTime: wallTime.Seconds(),
		Kind:     eventpb.KindTaggedRunMetadata,
		TaggedRunMetadata: &eventpb.TaggedRunMetadata{
			Tag:         string(tag),
			RunMetadata: runMetadata,
		},
	})
}

// WriteScalar appends a Summary record carrying a single scalar value under
// tag, with metadata.plugin_name set to "scalars" as a real scalar summary
// op would populate before the event ever reaches a file.
func (w *Writer) WriteScalar(tag types.Tag, step types.Step, wallTime types.WallTime, value float64) error {
	return w.WriteEvent(eventpb.Record{
		Step:     int64(step),
		WallTime: wallTime.Seconds(),
		Kind:     eventpb.KindSummary,
		Summary: &eventpb.Summary{
			Values: []eventpb.SummaryValue{{
				Tag: string(tag),
				Metadata: &types.SummaryMetadata{
					DataClass:  types.DataClassScalar,
					PluginData: types.PluginData{PluginName: types.PluginScalars},
				},
				Scalar: &value,
			}},
		},
	})
}

// WriteBlobSequence appends a Summary record carrying a blob-sequence value
// under tag, with the given plugin name.
func (w *Writer) WriteBlobSequence(tag types.Tag, step types.Step, wallTime types.WallTime, pluginName string, blobs [][]byte) error {
	return w.WriteEvent(eventpb.Record{
		Step:     int64(step),
		WallTime: wallTime.Seconds(),
		Kind:     eventpb.KindSummary,
		Summary: &eventpb.Summary{
			Values: []eventpb.SummaryValue{{
				Tag: string(tag),
				Metadata: &types.SummaryMetadata{
					DataClass:  types.DataClassBlobSequence,
					PluginData: types.PluginData{PluginName: pluginName},
				},
				BlobSeq: blobs,
			}},
		},
	})
}

// WriteTensor appends a Summary record carrying a tensor value under tag.
func (w *Writer) WriteTensor(tag types.Tag, step types.Step, wallTime types.WallTime, pluginName string, tensorBytes []byte) error {
	return w.WriteEvent(eventpb.Record{
		Step:     int64(step),
		WallTime: wallTime.Seconds(),
		Kind:     eventpb.KindSummary,
		Summary: &eventpb.Summary{
			Values: []eventpb.SummaryValue{{
				Tag: string(tag),
				Metadata: &types.SummaryMetadata{
					DataClass:  types.DataClassTensor,
					PluginData: types.PluginData{PluginName: pluginName},
				},
				Tensor: tensorBytes,
			}},
		},
	})
}
