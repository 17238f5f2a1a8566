// +build unit

package ledger

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testAddress(seed string) Address {
	return Address(sha256.Sum256([]byte(seed)))
}

func testHash(seed string) Hash {
	return Hash(sha256.Sum256([]byte(seed)))
}

func TestTransactionSerializationRoundTrip(t *testing.T) {
	payer := testAddress("payer")
	mint := testAddress("mint")
	store := testAddress("store")
	reference := testAddress("reference")

	payment := NewTokenTransferInstruction(
		payer,
		mint,
		DeriveTokenAccount(payer, mint),
		DeriveTokenAccount(store, mint),
		10000000,
		6,
	)
	payment.AppendReadonlyAccount(reference)

	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        payer,
	}
	tx.AddInstruction(payment)

	raw, err := tx.Serialize()
	assert.NoError(t, err)

	decoded, err := DeserializeTransaction(raw)
	assert.NoError(t, err)
	assert.Equal(t, tx.RecentBlockhash, decoded.RecentBlockhash)
	assert.Equal(t, tx.FeePayer, decoded.FeePayer)
	assert.Len(t, decoded.Instructions, 1)

	ix := decoded.Instructions[0]
	assert.Equal(t, TokenProgramID, ix.ProgramID)
	assert.True(t, ix.References(reference))

	amount, decimals, err := ParseTokenTransferInstruction(ix)
	assert.NoError(t, err)
	assert.Equal(t, uint64(10000000), amount)
	assert.Equal(t, uint8(6), decimals)
}

func TestTransactionSerializationPreservesInstructionOrder(t *testing.T) {
	payer := testAddress("payer")
	mint := testAddress("mint")
	store := testAddress("store")

	surrender := NewAssetTransferInstruction(&AssetTransferParams{
		Tree:          testAddress("tree"),
		TreeAuthority: testAddress("authority"),
		LeafOwner:     payer,
		LeafDelegate:  payer,
		NewLeafOwner:  store,
		Root:          testHash("root"),
		DataHash:      testHash("data"),
		CreatorHash:   testHash("creator"),
		LeafIndex:     7,
		ProofPath:     []Hash{testHash("n0"), testHash("n1"), testHash("n2")},
	})

	payment := NewTokenTransferInstruction(payer, mint, DeriveTokenAccount(payer, mint), DeriveTokenAccount(store, mint), 5000000, 6)

	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        payer,
	}
	tx.AddInstruction(surrender)
	tx.AddInstruction(payment)

	raw, err := tx.Serialize()
	assert.NoError(t, err)

	decoded, err := DeserializeTransaction(raw)
	assert.NoError(t, err)
	assert.Len(t, decoded.Instructions, 2)
	assert.Equal(t, AssetProgramID, decoded.Instructions[0].ProgramID)
	assert.Equal(t, TokenProgramID, decoded.Instructions[1].ProgramID)

	// proof path keys survive as appended readonly accounts
	assert.True(t, decoded.Instructions[0].References(Address(testHash("n1"))))
}

func TestTransactionSerializeBase64(t *testing.T) {
	payer := testAddress("payer")
	mint := testAddress("mint")

	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        payer,
	}
	tx.AddInstruction(NewTokenTransferInstruction(payer, mint, testAddress("src"), testAddress("dst"), 1, 6))

	encoded, err := tx.SerializeBase64()
	assert.NoError(t, err)
	assert.NotNil(t, encoded)

	raw, err := base64.StdEncoding.DecodeString(*encoded)
	assert.NoError(t, err)

	decoded, err := DeserializeTransaction(raw)
	assert.NoError(t, err)
	assert.Equal(t, payer, decoded.FeePayer)
}

func TestTransactionSerializationAccountFlags(t *testing.T) {
	payer := testAddress("payer")
	mint := testAddress("mint")
	reference := testAddress("reference")

	payment := NewTokenTransferInstruction(payer, mint, testAddress("src"), testAddress("dst"), 42, 6)
	payment.AppendReadonlyAccount(reference)

	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        payer,
	}
	tx.AddInstruction(payment)

	raw, err := tx.Serialize()
	assert.NoError(t, err)

	decoded, err := DeserializeTransaction(raw)
	assert.NoError(t, err)

	ix := decoded.Instructions[0]
	for _, account := range ix.Accounts {
		switch account.Address {
		case payer:
			assert.True(t, account.IsSigner)
			assert.False(t, account.IsWritable)
		case reference:
			// the reference never signs and is never writable
			assert.False(t, account.IsSigner)
			assert.False(t, account.IsWritable)
		}
	}
}

func TestTransactionSerializationRejectsEmpty(t *testing.T) {
	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        testAddress("payer"),
	}
	_, err := tx.Serialize()
	assert.Error(t, err)
}

func TestParseTreeAccountDataRoundTrip(t *testing.T) {
	state := &TreeState{
		Root:          testHash("root"),
		CanopyDepth:   3,
		MaxDepth:      14,
		MaxBufferSize: 64,
	}

	raw := SerializeTreeAccountData(state)
	parsed, err := ParseTreeAccountData(raw)
	assert.NoError(t, err)
	assert.Equal(t, state, parsed)
	assert.Equal(t, uint64(1)<<14, parsed.Capacity())
}

func TestParseTreeAccountDataRejectsMalformed(t *testing.T) {
	_, err := ParseTreeAccountData([]byte{0x01, 0x02})
	assert.Error(t, err)

	raw := SerializeTreeAccountData(&TreeState{Root: testHash("root"), MaxDepth: 14, MaxBufferSize: 64})
	raw[0] = 0xff // unknown version
	_, err = ParseTreeAccountData(raw)
	assert.Error(t, err)
}

func TestDeserializeTransactionRejectsTruncated(t *testing.T) {
	payer := testAddress("payer")
	mint := testAddress("mint")
	store := testAddress("store")

	payment := NewTokenTransferInstruction(payer, mint, DeriveTokenAccount(payer, mint), DeriveTokenAccount(store, mint), 2500000, 6)

	tx := &Transaction{
		RecentBlockhash: testHash("blockhash"),
		FeePayer:        payer,
	}
	tx.AddInstruction(payment)

	raw, err := tx.Serialize()
	assert.NoError(t, err)

	// every strict prefix of a valid blob is malformed
	for i := 0; i < len(raw); i++ {
		_, err := DeserializeTransaction(raw[:i])
		assert.Error(t, err, "accepted %d-byte prefix of a %d-byte transaction", i, len(raw))
	}
}
