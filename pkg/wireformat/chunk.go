// Package wireformat encodes the §6 chunk wire JSON format used when
// rebroadcasting a chunk to a peer.
package wireformat

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/ar-io/gateway-dataplane/pkg/retrieval"
)

// chunkWire mirrors the §6 JSON shape: binary fields are b64url, and
// 64-bit sizes are decimal strings to survive round-trips through
// JSON's float64 number type.
type chunkWire struct {
	DataRoot string `json:"data_root"`
	Chunk    string `json:"chunk"`
	DataSize string `json:"data_size"`
	DataPath string `json:"data_path"`
	Offset   string `json:"offset"`
}

// EncodeChunk marshals chunk into the §6 wire format.
func EncodeChunk(chunk retrieval.Chunk) ([]byte, error) {
	w := chunkWire{
		DataRoot: base64.RawURLEncoding.EncodeToString(chunk.DataRoot),
		Chunk:    base64.RawURLEncoding.EncodeToString(chunk.Data),
		DataSize: strconv.FormatUint(chunk.DataSize, 10),
		DataPath: base64.RawURLEncoding.EncodeToString(chunk.DataPath),
		Offset:   strconv.FormatUint(chunk.Offset, 10),
	}
	return json.Marshal(w)
}

// DecodeChunk parses the §6 wire format back into a retrieval.Chunk. The
// Hash, TxPath, Source and SourceHost fields are not carried on the wire
// and are left zero.
func DecodeChunk(data []byte) (retrieval.Chunk, error) {
	var w chunkWire
	if err := json.Unmarshal(data, &w); err != nil {
		return retrieval.Chunk{}, err
	}

	dataRoot, err := base64.RawURLEncoding.DecodeString(w.DataRoot)
	if err != nil {
		return retrieval.Chunk{}, err
	}
	chunkBytes, err := base64.RawURLEncoding.DecodeString(w.Chunk)
	if err != nil {
		return retrieval.Chunk{}, err
	}
	dataPath, err := base64.RawURLEncoding.DecodeString(w.DataPath)
	if err != nil {
		return retrieval.Chunk{}, err
	}
	dataSize, err := strconv.ParseUint(w.DataSize, 10, 64)
	if err != nil {
		return retrieval.Chunk{}, err
	}
	offset, err := strconv.ParseUint(w.Offset, 10, 64)
	if err != nil {
		return retrieval.Chunk{}, err
	}

	return retrieval.Chunk{
		Data:     chunkBytes,
		DataRoot: dataRoot,
		DataSize: dataSize,
		DataPath: dataPath,
		Offset:   offset,
	}, nil
}
