package adapter

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	cidlib "github.com/ipfs/go-cid"
	"github.com/m-mizutani/goerr/v2"
	mh "github.com/multiformats/go-multihash"
)

// computeCID derives a CIDv1 (raw codec, sha2-256) for a set of named files.
// The digest covers file names and contents in name order, so the same file
// set always yields the same CID independent of upload order.
func computeCID(files []File) (string, error) {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	var lenBuf [8]byte
	for _, f := range sorted {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f.Name)))
		h.Write(lenBuf[:])
		h.Write([]byte(f.Name))
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f.Data)))
		h.Write(lenBuf[:])
		h.Write(f.Data)
	}

	digest, err := mh.Encode(h.Sum(nil), mh.SHA2_256)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode multihash")
	}

	return cidlib.NewCidV1(cidlib.Raw, digest).String(), nil
}
