package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError reports a transaction that was mined with a failed status.
type RevertError struct {
	Method string
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s transaction %s reverted", e.Method, e.TxHash.Hex())
}

const revertPrefix = "execution reverted: "

// Reason extracts the most specific human readable reason from err: the
// decoded revert string carried by the RPC error, then the text following
// "execution reverted: ", then the error text itself, then fallback.
func Reason(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if reason := RevertReason(err); reason != "" {
		return reason
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// RevertReason returns the contract's revert string carried by err, or ""
// when err is not a revert with a reason.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason := decodeRevertData(dataErr.ErrorData()); reason != "" {
			return reason
		}
	}

	msg := err.Error()
	if i := strings.LastIndex(msg, revertPrefix); i >= 0 {
		return strings.TrimSpace(msg[i+len(revertPrefix):])
	}
	return ""
}

func decodeRevertData(data interface{}) string {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return ""
		}
		raw = b
	case []byte:
		raw = v
	default:
		return ""
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}
