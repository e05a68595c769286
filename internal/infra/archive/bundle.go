// Package archive builds the per-submission evidence bundle: the
// sampled frames plus the analysis report, zipped for audit storage.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

type EvidenceBundler struct{}

func NewEvidenceBundler() *EvidenceBundler {
	return &EvidenceBundler{}
}

func (b *EvidenceBundler) Bundle(ctx context.Context, frames entity.FrameSet, report []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	for i, frame := range frames {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := decodeDataURI(frame.DataURI)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i+1, err)
		}

		w, err := zw.Create(fmt.Sprintf("frame_%02d_%07.3fs.jpg", i+1, frame.Timestamp))
		if err != nil {
			return nil, fmt.Errorf("add frame %d to bundle: %w", i+1, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write frame %d: %w", i+1, err)
		}
	}

	w, err := zw.Create("report.json")
	if err != nil {
		return nil, fmt.Errorf("add report to bundle: %w", err)
	}
	if _, err := w.Write(report); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDataURI(uri string) ([]byte, error) {
	idx := strings.Index(uri, "base64,")
	if idx < 0 {
		return nil, fmt.Errorf("not a base64 data URI")
	}
	return base64.StdEncoding.DecodeString(uri[idx+len("base64,"):])
}
