package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

const (
	metadataKey = "__metadata__"
	dtypeF64    = "F64"
)

// Tensor is a float64 array with a row-major shape. An empty shape is a scalar.
type Tensor struct {
	Shape []int64
	Data  []float64
}

// NumElements returns the product of the shape.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes tensors in alphabetical order by name, followed
// by metadata and the data checksum in the header.
func WriteSafeTensors(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name, t := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if t.NumElements() != int64(len(t.Data)) {
			return fmt.Errorf("%w: tensor %q has shape %v and %d values", ErrShape, name, t.Shape, len(t.Data))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	header := make(map[string]any, len(names)+1)
	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(8 * len(t.Data))
		shape := t.Shape
		if shape == nil {
			shape = []int64{}
		}
		header[name] = SafeTensorHeader{DType: dtypeF64, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
		if err := binary.Write(&data, binary.LittleEndian, t.Data); err != nil {
			return fmt.Errorf("failed to encode tensor %s: %w", name, err)
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := ComputeChecksum(data.Bytes())
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// ReadSafeTensors reads every tensor and the metadata. Files written by
// other tools are accepted as long as every tensor is F64.
func ReadSafeTensors(r io.Reader) (map[string]Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	var metadata map[string]string
	headers := make(map[string]SafeTensorHeader, len(raw))
	metas := make([]TensorMeta, 0, len(raw))
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &metadata); err != nil {
				return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("failed to parse tensor %s: %w", name, err)
		}
		if h.DType != dtypeF64 {
			return nil, nil, fmt.Errorf("%w: tensor %q is %s", ErrUnsupportedDType, name, h.DType)
		}
		headers[name] = h
		metas = append(metas, TensorMeta{Name: name, Offset: h.DataOffsets[0], Size: h.DataOffsets[1] - h.DataOffsets[0]})
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}
	if sum, ok := metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, nil, err
		}
	}

	tensors := make(map[string]Tensor, len(headers))
	for name, h := range headers {
		t := Tensor{Shape: h.Shape}
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if n := t.NumElements(); !nonNegative(h.Shape) || 8*n != end-start {
			return nil, nil, fmt.Errorf("%w: tensor %q has shape %v and %d bytes", ErrShape, name, h.Shape, end-start)
		}
		t.Data = make([]float64, (end-start)/8)
		for i := range t.Data {
			t.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[start+8*int64(i):]))
		}
		tensors[name] = t
	}
	return tensors, metadata, nil
}

func nonNegative(shape []int64) bool {
	for _, d := range shape {
		if d < 0 {
			return false
		}
	}
	return true
}

// SaveFile writes a SafeTensors file at path.
func SaveFile(path string, tensors map[string]Tensor, metadata map[string]string) error {
	//nolint:gosec // G304: path is supplied by the caller
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteSafeTensors(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a SafeTensors file.
func LoadFile(path string) (map[string]Tensor, map[string]string, error) {
	//nolint:gosec // G304: path comes from the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadSafeTensors(f)
}
