package pipeline

import (
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"
)

const spirvMagic = 0x07230203

var (
	ErrMisalignedShader = errors.New("shader binary is not a whole number of words")
	ErrInvalidShader    = errors.New("shader binary is not SPIR-V")
)

// LoadShader reads a compiled SPIR-V module from fsys.
func LoadShader(fsys fs.FS, path string) ([]uint32, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	code, err := ParseShader(b)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return code, nil
}

// ParseShader converts a little-endian SPIR-V blob into words and checks the
// magic number.
func ParseShader(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrMisalignedShader, "%d bytes", len(b))
	}

	code := bytesToBytecode(b)
	if code[0] != spirvMagic {
		return nil, errors.Wrapf(ErrInvalidShader, "magic %#08x", code[0])
	}
	return code, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return byteCode
}
