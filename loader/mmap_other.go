//go:build !unix

package loader

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("memory mapping not supported on this platform")

func mapFile(f *os.File, size int64) ([]byte, func(), error) {
	return nil, nil, errMmapUnsupported
}
