package fitlib

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tormoder/fit"
	"github.com/tormoder/fit/dyncrc16"
)

// checkIntegrity verifies the header and CRCs of data and returns one line
// per problem found. An empty result means data is intact.
func checkIntegrity(data []byte) []string {
	var problems []string
	if len(data) < headerSizeNoCRC+2 {
		return []string{fmt.Sprintf("file too short: %d bytes", len(data))}
	}

	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return []string{fmt.Sprintf("invalid header size: %d", size)}
	}
	if typ := string(data[8:12]); typ != ".FIT" {
		problems = append(problems, fmt.Sprintf("invalid data type in header: %q", typ))
	}
	if size == headerSizeCRC {
		stored := binary.LittleEndian.Uint16(data[12:14])
		// A zero header CRC means the writer did not compute one.
		if computed := dyncrc16.Checksum(data[:12]); stored != 0 && stored != computed {
			problems = append(problems, fmt.Sprintf("header CRC mismatch: stored 0x%04X, computed 0x%04X", stored, computed))
		}
	}

	dataSize := binary.LittleEndian.Uint32(data[4:8])
	end := uint64(size) + uint64(dataSize)
	if end+2 > uint64(len(data)) {
		problems = append(problems, fmt.Sprintf("file truncated: have %d bytes, header declares %d", len(data), end+2))
		return problems
	}
	stored := binary.LittleEndian.Uint16(data[end : end+2])
	if computed := dyncrc16.Checksum(data[:end]); stored != computed {
		problems = append(problems, fmt.Sprintf("file CRC mismatch: stored 0x%04X, computed 0x%04X", stored, computed))
	}

	if len(problems) == 0 {
		if err := fit.CheckIntegrity(bytes.NewReader(data), false); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}
