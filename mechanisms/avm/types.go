package avm

// ExactAvmPayload is the inner payload of an AVM exact-scheme PaymentPayload:
// an atomic group of base64-encoded msgpack transactions, with PaymentIndex
// naming which element is the ASA transfer that pays the resource server.
type ExactAvmPayload struct {
	PaymentGroup []string `json:"paymentGroup"`
	PaymentIndex int      `json:"paymentIndex"`
}

// ToMap converts the payload to the wire-shaped map used by PaymentPayload.Payload.
func (p ExactAvmPayload) ToMap() map[string]interface{} {
	group := make([]interface{}, len(p.PaymentGroup))
	for i, txn := range p.PaymentGroup {
		group[i] = txn
	}
	return map[string]interface{}{
		"paymentGroup": group,
		"paymentIndex": p.PaymentIndex,
	}
}

// ExactAvmPayloadFromMap reconstructs an ExactAvmPayload from a decoded
// PaymentPayload.Payload map, as received over the wire.
func ExactAvmPayloadFromMap(data map[string]interface{}) ExactAvmPayload {
	var out ExactAvmPayload
	if raw, ok := data["paymentGroup"].([]interface{}); ok {
		out.PaymentGroup = make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out.PaymentGroup = append(out.PaymentGroup, s)
			}
		}
	} else if raw, ok := data["paymentGroup"].([]string); ok {
		out.PaymentGroup = raw
	}
	switch idx := data["paymentIndex"].(type) {
	case int:
		out.PaymentIndex = idx
	case float64:
		out.PaymentIndex = int(idx)
	}
	return out
}

// DecodedTransactionInfo is a normalized view over a decoded Algorand
// transaction, signed or unsigned, payment or asset-transfer.
type DecodedTransactionInfo struct {
	Type        string
	Sender      string
	Fee         uint64
	FirstValid  uint64
	LastValid   uint64
	GenesisHash string
	GenesisID   string
	Group       string
	IsSigned    bool
	Note        []byte

	// Payment-specific (Type == TxnTypePayment).
	Receiver        string
	Amount          uint64
	CloseRemainderTo string

	// Asset-transfer-specific (Type == TxnTypeAssetTransfer).
	AssetIndex    uint64
	AssetReceiver string
	AssetAmount   uint64
	AssetCloseTo  string

	// RekeyTo is non-empty only when the transaction attempts a rekey;
	// a payment group must never contain one.
	RekeyTo string
}

// TransactionGroupInfo summarizes a decoded payment group.
type TransactionGroupInfo struct {
	Transactions  []DecodedTransactionInfo
	GroupID       string
	TotalFee      uint64
	HasFeePayer   bool
	FeePayerIndex int // -1 if HasFeePayer is false
	PaymentIndex  int
}
