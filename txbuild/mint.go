package txbuild

import (
	"encoding/hex"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/note"
)

// NFT describes one edition to mint, following the ARC-3 asset
// parameter conventions.
type NFT struct {
	AssetName     string
	UnitName      string
	AssetURL      string
	MetadataHash  string // hex encoded 32-byte hash
	Edition       uint64
	TotalEditions uint64
}

// MintAssets builds one asset-create transaction per NFT, all signed by
// the creator. Manager, reserve, freeze and clawback are set to the
// creator, or to the enforcer application address when enforcerAppID is
// non-zero (ARC-18 royalty enforcement).
func MintAssets(p Params, creator types.Address, enforcerAppID uint64, nfts []NFT) (Group, error) {
	if len(nfts) == 0 {
		return Group{}, fault.Userf(400, "no assets to mint")
	}
	if len(nfts) > MaxMintBatch {
		return Group{}, fault.Userf(400, "cannot mint more than %d assets at once", MaxMintBatch)
	}

	target := creator
	standards := []string{"arc2", "arc3"}
	if enforcerAppID != 0 {
		target = crypto.GetApplicationAddress(enforcerAppID)
		standards = append(standards, "arc18")
	}

	g := Group{}
	for _, nft := range nfts {
		createNote, err := p.note(note.TypeAssetCreate, note.Payload{
			Edition:       nft.Edition,
			TotalEditions: nft.TotalEditions,
			Standards:     standards,
		})
		if err != nil {
			return Group{}, err
		}

		metadataHash, err := hex.DecodeString(nft.MetadataHash)
		if err != nil {
			return Group{}, fault.Userf(400, "metadata hash for %s is not hex: %s", nft.UnitName, err)
		}

		tx, err := transaction.MakeAssetCreateTxn(
			creator.String(),
			createNote,
			p.Suggested,
			1, // total: single edition
			0, // decimals
			enforcerAppID != 0,
			target.String(), // manager
			target.String(), // reserve
			target.String(), // freeze
			target.String(), // clawback
			nft.UnitName,
			nft.AssetName,
			nft.AssetURL,
			string(metadataHash),
		)
		if err != nil {
			return Group{}, fault.Wrap(err)
		}

		g.Txns = append(g.Txns, tx)
		g.Signers = append(g.Signers, creator.String())
	}

	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}
