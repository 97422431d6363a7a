package avm

import "testing"

func TestExactAvmPayloadDefaults(t *testing.T) {
	var p ExactAvmPayload
	if len(p.PaymentGroup) != 0 || p.PaymentIndex != 0 {
		t.Fatalf("zero value should be empty group, index 0: %+v", p)
	}
}

func TestExactAvmPayloadToMap(t *testing.T) {
	p := ExactAvmPayload{PaymentGroup: []string{"dHhuMQ==", "dHhuMg=="}, PaymentIndex: 1}
	m := p.ToMap()

	group, ok := m["paymentGroup"].([]interface{})
	if !ok || len(group) != 2 || group[0] != "dHhuMQ==" || group[1] != "dHhuMg==" {
		t.Fatalf("unexpected paymentGroup in map: %#v", m["paymentGroup"])
	}
	if m["paymentIndex"] != 1 {
		t.Fatalf("unexpected paymentIndex in map: %#v", m["paymentIndex"])
	}
	if _, ok := m["payment_group"]; ok {
		t.Fatalf("map must use camelCase keys only")
	}
}

func TestExactAvmPayloadFromMap(t *testing.T) {
	data := map[string]interface{}{
		"paymentGroup": []interface{}{"dHhuMQ==", "dHhuMg=="},
		"paymentIndex": 1,
	}
	p := ExactAvmPayloadFromMap(data)
	if len(p.PaymentGroup) != 2 || p.PaymentGroup[0] != "dHhuMQ==" || p.PaymentGroup[1] != "dHhuMg==" {
		t.Fatalf("unexpected payment group: %v", p.PaymentGroup)
	}
	if p.PaymentIndex != 1 {
		t.Fatalf("unexpected payment index: %d", p.PaymentIndex)
	}
}

func TestExactAvmPayloadFromMapMissingKeys(t *testing.T) {
	p := ExactAvmPayloadFromMap(map[string]interface{}{})
	if len(p.PaymentGroup) != 0 || p.PaymentIndex != 0 {
		t.Fatalf("missing keys should yield zero values: %+v", p)
	}
}

func TestExactAvmPayloadFromMapFloatIndex(t *testing.T) {
	// Decoded JSON numbers arrive as float64, not int.
	data := map[string]interface{}{
		"paymentGroup": []interface{}{"abc"},
		"paymentIndex": float64(1),
	}
	p := ExactAvmPayloadFromMap(data)
	if p.PaymentIndex != 1 {
		t.Fatalf("float64 payment index should decode to 1, got %d", p.PaymentIndex)
	}
}

func TestExactAvmPayloadRoundtrip(t *testing.T) {
	original := ExactAvmPayload{PaymentGroup: []string{"abc", "def"}, PaymentIndex: 1}
	restored := ExactAvmPayloadFromMap(original.ToMap())
	if len(restored.PaymentGroup) != len(original.PaymentGroup) {
		t.Fatalf("roundtrip changed group length")
	}
	for i := range original.PaymentGroup {
		if restored.PaymentGroup[i] != original.PaymentGroup[i] {
			t.Fatalf("roundtrip changed group element %d", i)
		}
	}
	if restored.PaymentIndex != original.PaymentIndex {
		t.Fatalf("roundtrip changed payment index")
	}
}

func TestDecodedTransactionInfoMinimal(t *testing.T) {
	info := DecodedTransactionInfo{
		Type:        TxnTypePayment,
		Sender:      "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ",
		Fee:         1000,
		FirstValid:  1000,
		LastValid:   2000,
		GenesisHash: "wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
	}
	if info.IsSigned {
		t.Fatalf("zero value IsSigned should be false")
	}
	if info.RekeyTo != "" {
		t.Fatalf("zero value RekeyTo should be empty")
	}
}

func TestDecodedTransactionInfoAssetTransferFields(t *testing.T) {
	info := DecodedTransactionInfo{
		Type:          TxnTypeAssetTransfer,
		Sender:        "SENDER",
		Fee:           1000,
		FirstValid:    1000,
		LastValid:     2000,
		GenesisHash:   "wGHE2Pwdvd7S12BL5FaOP20EGYesN73ktiC1qzkkit8=",
		GenesisID:     "mainnet-v1.0",
		Group:         "abc123",
		IsSigned:      true,
		Note:          []byte("test note"),
		AssetIndex:    31566704,
		AssetReceiver: "RECEIVER",
		AssetAmount:   1000000,
	}
	if info.Type != TxnTypeAssetTransfer || !info.IsSigned {
		t.Fatalf("unexpected asset transfer info: %+v", info)
	}
	if info.AssetIndex != 31566704 || info.AssetAmount != 1000000 {
		t.Fatalf("unexpected asset fields: %+v", info)
	}
}

func TestDecodedTransactionInfoPaymentFields(t *testing.T) {
	info := DecodedTransactionInfo{
		Type:             TxnTypePayment,
		Sender:           "SENDER",
		Fee:              1000,
		FirstValid:       1000,
		LastValid:        2000,
		GenesisHash:      "hash",
		Receiver:         "RECEIVER",
		Amount:           1000000,
		CloseRemainderTo: "CLOSE",
	}
	if info.Receiver != "RECEIVER" || info.Amount != 1000000 || info.CloseRemainderTo != "CLOSE" {
		t.Fatalf("unexpected payment fields: %+v", info)
	}
}

func TestTransactionGroupInfoDefaults(t *testing.T) {
	var info TransactionGroupInfo
	if len(info.Transactions) != 0 || info.GroupID != "" || info.TotalFee != 0 {
		t.Fatalf("zero value should be empty: %+v", info)
	}
	if info.HasFeePayer {
		t.Fatalf("zero value HasFeePayer should be false")
	}
	if info.FeePayerIndex != 0 {
		t.Fatalf("zero value FeePayerIndex is 0 (callers set -1 explicitly via DecodePaymentGroup)")
	}
}

func TestTransactionGroupInfoWithTransactions(t *testing.T) {
	txn1 := DecodedTransactionInfo{Type: TxnTypePayment, Sender: "A", Fee: 2000, FirstValid: 1000, LastValid: 2000, GenesisHash: "hash"}
	txn2 := DecodedTransactionInfo{Type: TxnTypeAssetTransfer, Sender: "B", Fee: 0, FirstValid: 1000, LastValid: 2000, GenesisHash: "hash"}

	info := TransactionGroupInfo{
		Transactions:  []DecodedTransactionInfo{txn1, txn2},
		GroupID:       "group123",
		TotalFee:      2000,
		HasFeePayer:   true,
		FeePayerIndex: 0,
		PaymentIndex:  1,
	}
	if len(info.Transactions) != 2 || info.GroupID != "group123" || info.TotalFee != 2000 {
		t.Fatalf("unexpected group info: %+v", info)
	}
	if !info.HasFeePayer || info.FeePayerIndex != 0 || info.PaymentIndex != 1 {
		t.Fatalf("unexpected fee payer fields: %+v", info)
	}
}
