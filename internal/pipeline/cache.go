package pipeline

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/vkngwrapper/quad/internal/gpu"
)

// cacheHeaderVersionOne is VK_PIPELINE_CACHE_HEADER_VERSION_ONE.
const cacheHeaderVersionOne = 1

// cacheHeaderSize is the length of a version one header: length, version,
// vendor and device as 32-bit words followed by the 16 byte UUID.
const cacheHeaderSize = 16 + len(uuid.UUID{})

var ErrCacheMismatch = errors.New("pipeline cache was written by another driver or device")

// CacheHeader is the prefix every driver writes in front of its pipeline
// cache data. All fields are little endian.
type CacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

func ParseCacheHeader(data []byte) (CacheHeader, error) {
	var header CacheHeader
	if len(data) < cacheHeaderSize {
		return header, errors.Newf("pipeline cache of %d bytes has no header", len(data))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return header, errors.Wrap(err, "read pipeline cache header")
	}
	return header, nil
}

// Check compares the header against the device. Drivers reject data from
// other devices anyway; checking first keeps a stale file from being handed
// to the driver at all.
func (h CacheHeader) Check(info gpu.DeviceInfo) error {
	var problems []string
	if h.Length < uint32(cacheHeaderSize) {
		problems = append(problems, "bad header length")
	}
	if h.Version != cacheHeaderVersionOne {
		problems = append(problems, "unsupported header version")
	}
	if h.VendorID != info.VendorID {
		problems = append(problems, "vendor ID mismatch")
	}
	if h.DeviceID != info.DeviceID {
		problems = append(problems, "device ID mismatch")
	}
	if h.UUID != info.PipelineCacheUUID {
		problems = append(problems, "UUID mismatch")
	}
	if len(problems) > 0 {
		return errors.Wrapf(ErrCacheMismatch, "%v", problems)
	}
	return nil
}

// LoadCache returns the cache data stored at path if it was written for this
// device. A missing file gives nil data. A file written for another device is
// removed so the next run repopulates it, and also gives nil data.
func LoadCache(path string, info gpu.DeviceInfo, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("pipeline cache miss", slog.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline cache")
	}

	header, err := ParseCacheHeader(data)
	if err == nil {
		err = header.Check(info)
	}
	if err != nil {
		logger.Warn("discarding pipeline cache",
			slog.String("path", path),
			slog.String("reason", err.Error()),
			slog.String("cache_uuid", header.UUID.String()),
			slog.String("driver_uuid", info.PipelineCacheUUID.String()))
		// Not important if this fails.
		_ = os.Remove(path)
		return nil, nil
	}

	logger.Debug("pipeline cache hit", slog.String("path", path), slog.Int("bytes", len(data)))
	return data, nil
}

// SaveCache writes the cache's current contents to path.
func SaveCache(path string, cache gpu.PipelineCache) error {
	data, err := cache.Data()
	if err != nil {
		return errors.Wrap(err, "get pipeline cache data")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create pipeline cache directory")
		}
	}
	return errors.Wrap(os.WriteFile(path, data, 0o666), "write pipeline cache")
}
