package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/vkngwrapper/quad/internal/gpu"
	"github.com/vkngwrapper/quad/internal/gpu/gputest"
)

var testDevice = gpu.DeviceInfo{
	VendorID:          0x10de,
	DeviceID:          0x2684,
	PipelineCacheUUID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
}

func cacheBlob(t *testing.T, h CacheHeader, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func goodHeader() CacheHeader {
	return CacheHeader{
		Length:   uint32(cacheHeaderSize),
		Version:  cacheHeaderVersionOne,
		VendorID: testDevice.VendorID,
		DeviceID: testDevice.DeviceID,
		UUID:     testDevice.PipelineCacheUUID,
	}
}

func TestParseCacheHeader(t *testing.T) {
	blob := cacheBlob(t, goodHeader(), []byte("driver data"))
	h, err := ParseCacheHeader(blob)
	if err != nil {
		t.Fatal(err)
	}
	if h != goodHeader() {
		t.Errorf("header = %+v", h)
	}
	if err := h.Check(testDevice); err != nil {
		t.Errorf("Check: %v", err)
	}

	if _, err := ParseCacheHeader(blob[:10]); err == nil {
		t.Error("truncated header accepted")
	}
}

func TestCacheHeaderCheck(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CacheHeader)
	}{
		{"short length", func(h *CacheHeader) { h.Length = 4 }},
		{"version", func(h *CacheHeader) { h.Version = 2 }},
		{"vendor", func(h *CacheHeader) { h.VendorID = 0x1002 }},
		{"device", func(h *CacheHeader) { h.DeviceID++ }},
		{"uuid", func(h *CacheHeader) { h.UUID = uuid.New() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := goodHeader()
			tt.modify(&h)
			if err := h.Check(testDevice); !errors.Is(err, ErrCacheMismatch) {
				t.Errorf("Check() = %v, want ErrCacheMismatch", err)
			}
		})
	}
}

func TestLoadCache(t *testing.T) {
	dir := t.TempDir()

	data, err := LoadCache(filepath.Join(dir, "missing.bin"), testDevice, nil)
	if err != nil || data != nil {
		t.Fatalf("missing cache = %v, %v", data, err)
	}

	good := filepath.Join(dir, "good.bin")
	blob := cacheBlob(t, goodHeader(), []byte("payload"))
	if err := os.WriteFile(good, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	data, err = LoadCache(good, testDevice, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, blob) {
		t.Errorf("loaded %d bytes, want %d", len(data), len(blob))
	}

	stale := filepath.Join(dir, "stale.bin")
	other := goodHeader()
	other.UUID = uuid.New()
	if err := os.WriteFile(stale, cacheBlob(t, other, nil), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err = LoadCache(stale, testDevice, nil)
	if err != nil || data != nil {
		t.Fatalf("stale cache = %v, %v", data, err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale cache file was kept")
	}
}

func TestSaveCache(t *testing.T) {
	dev := gputest.New()
	blob := cacheBlob(t, goodHeader(), []byte("payload"))
	cache, err := dev.CreatePipelineCache(blob)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Destroy()

	path := filepath.Join(t.TempDir(), "nested", "cache.bin")
	if err := SaveCache(path, cache); err != nil {
		t.Fatalf("SaveCache: %+v", err)
	}

	data, err := LoadCache(path, testDevice, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, blob) {
		t.Errorf("round trip lost data")
	}
}
