// +build unit

package checkout

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/provideplatform/checkout/asset"
	"github.com/provideplatform/checkout/ledger"
	"github.com/provideplatform/checkout/proof"
)

type fakeReader struct {
	blockhash ledger.Hash
	decimals  uint8
	err       error
}

func (r *fakeReader) LatestBlockhash() (ledger.Hash, error) {
	if r.err != nil {
		return ledger.Hash{}, r.err
	}
	return r.blockhash, nil
}

func (r *fakeReader) MintDecimals(mint ledger.Address) (uint8, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.decimals, nil
}

type fakeLocator struct {
	assets []*asset.VerifiedAsset
	err    error
}

func (l *fakeLocator) FindOwnedAssets(owner ledger.Address) ([]*asset.VerifiedAsset, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.assets, nil
}

func seedAddress(seed string) ledger.Address {
	return ledger.Address(sha256.Sum256([]byte(seed)))
}

func seedHash(seed string) ledger.Hash {
	return ledger.Hash(sha256.Sum256([]byte(seed)))
}

// builds a verified credential backed by a real depth-8 tree with the given
// canopy depth
func verifiedCredential(t *testing.T, owner, tree ledger.Address, canopyDepth uint32) *asset.VerifiedAsset {
	merkle, err := proof.NewFixedDepthTree(8)
	assert.NoError(t, err)

	idx, err := merkle.Insert(seedHash("credential-leaf"))
	assert.NoError(t, err)

	p, err := merkle.ProofAt(idx)
	assert.NoError(t, err)

	return &asset.VerifiedAsset{
		Asset: &asset.CompressedAsset{
			ID:          seedAddress("credential"),
			Owner:       owner,
			Tree:        tree,
			LeafIndex:   idx,
			DataHash:    seedHash("data"),
			CreatorHash: seedHash("creator"),
			Compressed:  true,
		},
		Proof:     p,
		TreeState: merkle.State(canopyDepth, 64),
	}
}

func testBuilder(locator AssetLocator) (*Builder, *fakeReader) {
	reader := &fakeReader{
		blockhash: seedHash("blockhash"),
		decimals:  6,
	}
	return BuilderFactory(
		reader,
		locator,
		seedAddress("store"),
		seedAddress("mint"),
		seedAddress("tree-authority"),
	), reader
}

func TestBuildTransactionFullPrice(t *testing.T) {
	payer := seedAddress("payer")
	reference := seedAddress("reference")

	builder, _ := testBuilder(&fakeLocator{})
	built, err := builder.BuildTransaction(payer, "20.00", reference)
	assert.NoError(t, err)
	assert.False(t, built.Discount.Applied())
	assert.Equal(t, uint64(20000000), built.Units)

	tx := built.Transaction
	assert.Equal(t, payer, tx.FeePayer)
	assert.Equal(t, seedHash("blockhash"), tx.RecentBlockhash)
	assert.Len(t, tx.Instructions, 1)

	payment := tx.Instructions[0]
	assert.Equal(t, ledger.TokenProgramID, payment.ProgramID)
	assert.True(t, payment.References(reference))

	amount, decimals, err := ledger.ParseTokenTransferInstruction(payment)
	assert.NoError(t, err)
	assert.Equal(t, uint64(20000000), amount)
	assert.Equal(t, uint8(6), decimals)

	// payer is the sole signer anywhere in the transaction
	for _, ix := range tx.Instructions {
		for _, account := range ix.Accounts {
			if account.IsSigner {
				assert.Equal(t, payer, account.Address)
			}
		}
	}
}

func TestBuildTransactionWithCredential(t *testing.T) {
	payer := seedAddress("payer")
	tree := seedAddress("loyalty-tree")
	reference := seedAddress("reference")

	credential := verifiedCredential(t, payer, tree, 0)
	builder, _ := testBuilder(&fakeLocator{assets: []*asset.VerifiedAsset{credential}})

	built, err := builder.BuildTransaction(payer, "20.00", reference)
	assert.NoError(t, err)
	assert.True(t, built.Discount.Applied())
	assert.Equal(t, uint64(10000000), built.Units)

	tx := built.Transaction
	assert.Len(t, tx.Instructions, 2)

	// credential surrender strictly precedes payment
	assert.Equal(t, ledger.AssetProgramID, tx.Instructions[0].ProgramID)
	assert.Equal(t, ledger.TokenProgramID, tx.Instructions[1].ProgramID)

	amount, _, err := ledger.ParseTokenTransferInstruction(tx.Instructions[1])
	assert.NoError(t, err)
	assert.Equal(t, uint64(10000000), amount)
	assert.True(t, tx.Instructions[1].References(reference))

	// the payer signs the credential surrender as leaf owner
	assert.True(t, tx.Instructions[0].References(payer))

	// round-trips through the wire codec
	raw, err := tx.Serialize()
	assert.NoError(t, err)
	decoded, err := ledger.DeserializeTransaction(raw)
	assert.NoError(t, err)
	assert.Len(t, decoded.Instructions, 2)
}

func TestBuildTransactionTrimsCanopy(t *testing.T) {
	payer := seedAddress("payer")
	tree := seedAddress("loyalty-tree")
	canopyDepth := uint32(3)

	credential := verifiedCredential(t, payer, tree, canopyDepth)
	builder, _ := testBuilder(&fakeLocator{assets: []*asset.VerifiedAsset{credential}})

	built, err := builder.BuildTransaction(payer, "20.00", seedAddress("reference"))
	assert.NoError(t, err)

	surrender := built.Transaction.Instructions[0]

	// 7 fixed accounts plus the canopy-trimmed proof path
	expectedPathLen := len(credential.Proof.Siblings) - int(canopyDepth)
	assert.Len(t, surrender.Accounts, 7+expectedPathLen)
}

func TestBuildTransactionFailsClosedOnInvalidProof(t *testing.T) {
	payer := seedAddress("payer")
	tree := seedAddress("loyalty-tree")

	credential := verifiedCredential(t, payer, tree, 0)
	credential.Proof.Siblings[0][0] ^= 0x01

	builder, _ := testBuilder(&fakeLocator{assets: []*asset.VerifiedAsset{credential}})

	_, err := builder.BuildTransaction(payer, "20.00", seedAddress("reference"))
	assert.Equal(t, proof.ErrProofInvalid, err)
}

func TestBuildTransactionIndexUnavailableMeansFullPrice(t *testing.T) {
	payer := seedAddress("payer")

	builder, _ := testBuilder(&fakeLocator{err: asset.ErrIndexUnavailable})

	built, err := builder.BuildTransaction(payer, "20.00", seedAddress("reference"))
	assert.NoError(t, err)
	assert.False(t, built.Discount.Applied())
	assert.Equal(t, uint64(20000000), built.Units)
	assert.Len(t, built.Transaction.Instructions, 1)
}

func TestBuildTransactionOddUnitsTruncate(t *testing.T) {
	payer := seedAddress("payer")
	tree := seedAddress("loyalty-tree")

	credential := verifiedCredential(t, payer, tree, 0)
	builder, reader := testBuilder(&fakeLocator{assets: []*asset.VerifiedAsset{credential}})
	reader.decimals = 0

	built, err := builder.BuildTransaction(payer, "5", seedAddress("reference"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), built.Units)
}

func TestBuildTransactionRejectsMalformedAmount(t *testing.T) {
	builder, _ := testBuilder(&fakeLocator{})

	_, err := builder.BuildTransaction(seedAddress("payer"), "twenty", seedAddress("reference"))
	assert.Error(t, err)
}
