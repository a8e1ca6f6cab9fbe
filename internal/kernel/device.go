//go:build linux

package kernel

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// ioctl request code: _IOWR('V', 0x01, ControlBlockSize).
const (
	iocWrite  = 1
	iocRead   = 2
	iocMagic  = 'V'
	iocNumber = 0x01

	deviceRequest = (iocRead|iocWrite)<<30 | ControlBlockSize<<16 | iocMagic<<8 | iocNumber
)

// searchEntrySize is one search output entry: id u64 + score bit pattern u32.
const searchEntrySize = 12

// Device is the production Bridge over the kernel vector-storage character
// device. Every call marshals a control block and issues one blocking
// ioctl; the device supports multiple in-flight calls, so admission control
// lives in Pool, not here.
type Device struct {
	path   string
	fd     int
	closed atomic.Bool
}

var _ Bridge = (*Device)(nil)

// OpenDevice opens the character device at path.
func OpenDevice(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// submit marshals the block, issues the ioctl, and re-reads the block for
// output fields. The buffers referenced by pointer fields must be kept
// alive by the caller across the call.
func (d *Device) submit(ctx context.Context, block *ControlBlock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed.Load() {
		return fmt.Errorf("device %s is closed", d.path)
	}

	buf, err := block.MarshalBinary()
	if err != nil {
		return err
	}

	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(d.fd),
		uintptr(deviceRequest),
		uintptr(unsafe.Pointer(&buf[0])),
	)
	if errno != 0 {
		return fmt.Errorf("ioctl %s on %s: %w", block.OpCode, d.path, errno)
	}
	if err := block.UnmarshalBinary(buf); err != nil {
		return err
	}
	return statusError(block.OpCode, block.Status)
}

// CreateCollection allocates a device collection.
func (d *Device) CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 || dimension > MaxDim {
		return fmt.Errorf("%w: dimension %d", domain.ErrDimension, dimension)
	}
	metric, err := MetricCode(distance)
	if err != nil {
		return err
	}
	block, err := NewControlBlock(OpCreateCollection, name)
	if err != nil {
		return err
	}
	block.Dimension = uint32(dimension)
	block.Metric = metric
	return d.submit(ctx, block)
}

// DeleteCollection releases a device collection.
func (d *Device) DeleteCollection(ctx context.Context, name string) error {
	block, err := NewControlBlock(OpDeleteCollection, name)
	if err != nil {
		return err
	}
	return d.submit(ctx, block)
}

// CollectionInfo reads one collection's dimension, metric, and point count.
func (d *Device) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	block, err := NewControlBlock(OpCollectionInfo, name)
	if err != nil {
		return CollectionInfo{}, err
	}
	// Point count comes back through the output-length field.
	if err := d.submit(ctx, block); err != nil {
		return CollectionInfo{}, err
	}
	distance, err := MetricDistance(block.Metric)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{
		Name:       name,
		Dimension:  int(block.Dimension),
		Distance:   distance,
		PointCount: block.OutLen,
	}, nil
}

// ListCollections enumerates collection names, then fetches each info.
// The device returns names packed NUL-separated into the output buffer.
func (d *Device) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	out := make([]byte, 64*NameSize)
	block := &ControlBlock{
		OpCode: OpListCollections,
		OutPtr: uint64(uintptr(unsafe.Pointer(&out[0]))),
		OutLen: uint64(len(out)),
	}
	err := d.submit(ctx, block)
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}

	names := splitNames(out[:min(block.OutLen, uint64(len(out)))])
	infos := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := d.CollectionInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// InsertPoints encodes vectors to bit patterns and submits one insert.
func (d *Device) InsertPoints(ctx context.Context, collection string, ids []uint64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", domain.ErrDimensionMismatch, len(ids), len(vectors))
	}
	buf, err := EncodeBatch(vectors)
	if err != nil {
		return err
	}
	block, err := NewControlBlock(OpInsertPoints, collection)
	if err != nil {
		return err
	}
	block.Dimension = uint32(len(vectors[0]))
	block.VectorCount = uint32(len(vectors))
	block.VectorBufPtr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	block.VectorBufLen = uint64(len(buf))
	block.IDsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	block.IDsLen = uint64(len(ids))

	err = d.submit(ctx, block)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(ids)
	return err
}

// DeletePoints removes the given ids.
func (d *Device) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	block, err := NewControlBlock(OpDeletePoints, collection)
	if err != nil {
		return err
	}
	block.IDsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	block.IDsLen = uint64(len(ids))

	err = d.submit(ctx, block)
	runtime.KeepAlive(ids)
	return err
}

// GetPoints fetches stored vectors by id. Missing ids are skipped.
func (d *Device) GetPoints(ctx context.Context, collection string, ids []uint64) ([]VectorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	info, err := d.CollectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}
	block, err := NewControlBlock(OpGetPoints, collection)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ids)*recordSize(info.Dimension))
	block.Dimension = uint32(info.Dimension)
	block.IDsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	block.IDsLen = uint64(len(ids))
	block.OutPtr = uint64(uintptr(unsafe.Pointer(&out[0])))
	block.OutLen = uint64(len(ids))

	err = d.submit(ctx, block)
	runtime.KeepAlive(ids)
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}
	return parseRecords(out, info.Dimension, int(block.OutLen))
}

// ScanPoints reads up to limit points with id > afterID, id ascending.
func (d *Device) ScanPoints(ctx context.Context, collection string, afterID uint64, limit int) ([]VectorRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	info, err := d.CollectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}
	block, err := NewControlBlock(OpScanPoints, collection)
	if err != nil {
		return nil, err
	}
	// The scan cursor travels in the ids buffer: one id, exclusive.
	cursor := []uint64{afterID}
	out := make([]byte, limit*recordSize(info.Dimension))
	block.Dimension = uint32(info.Dimension)
	block.Limit = uint32(limit)
	block.IDsPtr = uint64(uintptr(unsafe.Pointer(&cursor[0])))
	block.IDsLen = 1
	block.OutPtr = uint64(uintptr(unsafe.Pointer(&out[0])))
	block.OutLen = uint64(limit)

	err = d.submit(ctx, block)
	runtime.KeepAlive(cursor)
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}
	return parseRecords(out, info.Dimension, int(block.OutLen))
}

// Search submits one similarity query and decodes scored hits.
func (d *Device) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	queryBits, err := EncodeVector(vector)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", limit)
	}
	block, err := NewControlBlock(OpSearchVectors, collection)
	if err != nil {
		return nil, err
	}
	out := make([]byte, limit*searchEntrySize)
	block.Dimension = uint32(len(vector))
	block.VectorCount = 1
	block.Limit = uint32(limit)
	block.VectorBufPtr = uint64(uintptr(unsafe.Pointer(&queryBits[0])))
	block.VectorBufLen = uint64(len(queryBits))
	block.OutPtr = uint64(uintptr(unsafe.Pointer(&out[0])))
	block.OutLen = uint64(limit)

	err = d.submit(ctx, block)
	runtime.KeepAlive(queryBits)
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}

	n := int(block.OutLen)
	if n > limit {
		n = limit
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		entry := out[i*searchEntrySize:]
		hits[i] = Hit{
			ID:    binary.LittleEndian.Uint64(entry),
			Score: DecodeFloat(binary.LittleEndian.Uint32(entry[8:])),
		}
	}
	return hits, nil
}

// Ping verifies the device answers a zero-op info call.
func (d *Device) Ping(ctx context.Context) error {
	_, err := d.ListCollections(ctx)
	return err
}

// Close releases the device handle.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("close device %s: %w", d.path, err)
	}
	return nil
}

// recordSize is one scan/get output entry: id u64 + dimension bit patterns.
func recordSize(dimension int) int {
	return 8 + 4*dimension
}

func parseRecords(out []byte, dimension, count int) ([]VectorRecord, error) {
	size := recordSize(dimension)
	if count*size > len(out) {
		return nil, fmt.Errorf("device wrote %d records, buffer holds %d", count, len(out)/size)
	}
	records := make([]VectorRecord, count)
	for i := 0; i < count; i++ {
		entry := out[i*size:]
		bits := make([]uint32, dimension)
		for j := 0; j < dimension; j++ {
			bits[j] = binary.LittleEndian.Uint32(entry[8+4*j:])
		}
		records[i] = VectorRecord{
			ID:     binary.LittleEndian.Uint64(entry),
			Vector: DecodeVector(bits),
		}
	}
	return records, nil
}

func splitNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
