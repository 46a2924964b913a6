package network

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
)

// Binary serialization for a preprocessed Network: the same CRC32'd,
// unsafe.Slice zero-copy format the teacher's graph/binary.go writes for its
// contracted routing graph, adapted to this package's CSR layout (node
// coordinates and adjacency, edge endpoints/speed/length/shape, and the
// NetworkMeta projection bundle) instead of contraction-hierarchy overlays.

const (
	magicBytes = "ROADMTCH"
	version    = uint32(1)
	maxNodes   = 10_000_000
	maxEdges   = 50_000_000
)

type fileHeader struct {
	Magic    [8]byte
	Version  uint32
	NumNodes uint32
	NumEdges uint32
}

// WriteBinary serializes n to path, writing to a temp file and renaming into
// place so a crash mid-write never leaves a truncated file at path.
func WriteBinary(n *Network, path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("network: create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	cw := &crc32Writer{w: f, hash: crc32.NewIEEE()}

	hdr := fileHeader{
		Version:  version,
		NumNodes: uint32(n.NumNodes()),
		NumEdges: uint32(n.NumEdges()),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("network: write header: %w", err)
	}

	if err := writeFloat64Slice(cw, n.nodeX); err != nil {
		return err
	}
	if err := writeFloat64Slice(cw, n.nodeY); err != nil {
		return err
	}
	if err := writeAdjacency(cw, n.nodeOut); err != nil {
		return err
	}
	if err := writeAdjacency(cw, n.nodeIn); err != nil {
		return err
	}

	if err := writeNodeIDSlice(cw, n.edgeFrom); err != nil {
		return err
	}
	if err := writeNodeIDSlice(cw, n.edgeTo); err != nil {
		return err
	}
	if err := writeFloat64Slice(cw, n.edgeSpeed); err != nil {
		return err
	}
	if err := writeFloat64Slice(cw, n.edgeLength); err != nil {
		return err
	}
	if err := writeUint32Slice(cw, n.edgeShapeStart); err != nil {
		return err
	}
	if err := writePointSlice(cw, n.edgeShape); err != nil {
		return err
	}

	meta := n.Meta
	if err := writeString(cw, meta.ProjParameter); err != nil {
		return err
	}
	if err := binary.Write(cw, binary.LittleEndian, struct {
		NetOffsetX, NetOffsetY                         float64
		OrigMinX, OrigMinY, OrigMaxX, OrigMaxY          float64
		ConvMinX, ConvMinY, ConvMaxX, ConvMaxY          float64
	}{
		meta.NetOffsetX, meta.NetOffsetY,
		meta.OrigBoundary.MinX, meta.OrigBoundary.MinY, meta.OrigBoundary.MaxX, meta.OrigBoundary.MaxY,
		meta.ConvBoundary.MinX, meta.ConvBoundary.MinY, meta.ConvBoundary.MaxX, meta.ConvBoundary.MaxY,
	}); err != nil {
		return fmt.Errorf("network: write meta: %w", err)
	}

	checksum := cw.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("network: write CRC32: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("network: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// ReadBinary deserializes a Network from path. proj is applied to the
// resulting Network for LonLatToXY/XYToLonLat — it is not itself persisted,
// only the parameters needed to reconstruct one (meta.ProjParameter,
// meta.NetOffsetX/Y) are, matching NetworkMeta's role as metadata rather
// than a live projector.
func ReadBinary(path string, proj coordproj.Projector) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("network: open: %w", err)
	}
	defer f.Close()

	cr := &crc32Reader{r: f, hash: crc32.NewIEEE()}

	var hdr fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("network: read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("network: invalid magic bytes %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("network: unsupported version %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes || hdr.NumEdges > maxEdges {
		return nil, fmt.Errorf("network: node/edge count exceeds limit")
	}

	n := &Network{proj: proj}
	numNodes, numEdges := int(hdr.NumNodes), int(hdr.NumEdges)

	if n.nodeX, err = readFloat64Slice(cr, numNodes); err != nil {
		return nil, err
	}
	if n.nodeY, err = readFloat64Slice(cr, numNodes); err != nil {
		return nil, err
	}
	if n.nodeOut, err = readAdjacency(cr, numNodes); err != nil {
		return nil, err
	}
	if n.nodeIn, err = readAdjacency(cr, numNodes); err != nil {
		return nil, err
	}

	if n.edgeFrom, err = readNodeIDSlice(cr, numEdges); err != nil {
		return nil, err
	}
	if n.edgeTo, err = readNodeIDSlice(cr, numEdges); err != nil {
		return nil, err
	}
	if n.edgeSpeed, err = readFloat64Slice(cr, numEdges); err != nil {
		return nil, err
	}
	if n.edgeLength, err = readFloat64Slice(cr, numEdges); err != nil {
		return nil, err
	}
	if n.edgeShapeStart, err = readUint32Slice(cr, numEdges+1); err != nil {
		return nil, err
	}
	numShapePoints := 0
	if numEdges > 0 {
		numShapePoints = int(n.edgeShapeStart[numEdges])
	}
	if n.edgeShape, err = readPointSlice(cr, numShapePoints); err != nil {
		return nil, err
	}
	n.edgeBBox = make([]geo.BBox, numEdges)
	for i := 0; i < numEdges; i++ {
		start, end := n.edgeShapeStart[i], n.edgeShapeStart[i+1]
		n.edgeBBox[i] = geo.BoundingBox(n.edgeShape[start:end])
	}

	var meta NetworkMeta
	if meta.ProjParameter, err = readString(cr); err != nil {
		return nil, err
	}
	var rest struct {
		NetOffsetX, NetOffsetY                float64
		OrigMinX, OrigMinY, OrigMaxX, OrigMaxY float64
		ConvMinX, ConvMinY, ConvMaxX, ConvMaxY float64
	}
	if err := binary.Read(cr, binary.LittleEndian, &rest); err != nil {
		return nil, fmt.Errorf("network: read meta: %w", err)
	}
	meta.NetOffsetX, meta.NetOffsetY = rest.NetOffsetX, rest.NetOffsetY
	meta.OrigBoundary = geo.BBox{MinX: rest.OrigMinX, MinY: rest.OrigMinY, MaxX: rest.OrigMaxX, MaxY: rest.OrigMaxY}
	meta.ConvBoundary = geo.BBox{MinX: rest.ConvMinX, MinY: rest.ConvMinY, MaxX: rest.ConvMaxX, MaxY: rest.ConvMaxY}
	n.Meta = meta

	expected := cr.hash.Sum32()
	var stored uint32
	if err := binary.Read(f, binary.LittleEndian, &stored); err != nil {
		return nil, fmt.Errorf("network: read CRC32: %w", err)
	}
	if stored != expected {
		return nil, fmt.Errorf("network: CRC32 mismatch: stored=%08x computed=%08x", stored, expected)
	}

	n.index = newSpatialIndex(n)
	return n, nil
}

func writeAdjacency(w io.Writer, adj [][]EdgeID) error {
	for _, list := range adj {
		if err := writeEdgeIDSlice(w, list); err != nil {
			return err
		}
	}
	return nil
}

func readAdjacency(r io.Reader, numNodes int) ([][]EdgeID, error) {
	adj := make([][]EdgeID, numNodes)
	for i := range adj {
		list, err := readEdgeIDSliceLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		adj[i] = list
	}
	return adj, nil
}

func writeEdgeIDSlice(w io.Writer, s []EdgeID) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func readEdgeIDSliceLenPrefixed(r io.Reader) ([]EdgeID, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("network: read adjacency length: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	s := make([]EdgeID, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), int(n)*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("network: read adjacency: %w", err)
	}
	return s, nil
}

func writeNodeIDSlice(w io.Writer, s []NodeID) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func readNodeIDSlice(r io.Reader, n int) ([]NodeID, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]NodeID, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("network: read node ids: %w", err)
	}
	return s, nil
}

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("network: read uint32 slice: %w", err)
	}
	return s, nil
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("network: read float64 slice: %w", err)
	}
	return s, nil
}

func writePointSlice(w io.Writer, s []geo.Point) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*16)
	_, err := w.Write(b)
	return err
}

func readPointSlice(r io.Reader, n int) ([]geo.Point, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]geo.Point, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*16)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("network: read point slice: %w", err)
	}
	return s, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("network: read string length: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("network: read string: %w", err)
	}
	return string(b), nil
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
