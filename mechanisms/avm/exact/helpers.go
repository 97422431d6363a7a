package exact

import (
	"encoding/base64"
	"strconv"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func encodeTransaction(txn types.Transaction) []byte {
	return msgpack.Encode(txn)
}

func b64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
