// Package account models platform-managed ledger keypairs.
package account

import (
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/google/uuid"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/keycipher"
)

// Custodial is a ledger account whose key the platform holds on behalf
// of exactly one user. The account is usable only once its funding
// transaction is Confirmed.
type Custodial struct {
	ID            string
	UserID        string
	Address       string
	EncryptedKey  string
	CreationTxnID string
}

// Generate creates a fresh keypair for userID and encrypts its mnemonic
// with cipher. The returned crypto account is the only copy of the
// plaintext key; callers sign with it and let it go out of scope.
func Generate(userID string, cipher keycipher.Cipher) (*Custodial, crypto.Account, error) {
	keys := crypto.GenerateAccount()

	words, err := mnemonic.FromPrivateKey(keys.PrivateKey)
	if err != nil {
		return nil, crypto.Account{}, fault.Wrap(err)
	}

	encrypted, err := cipher.Encrypt(words)
	if err != nil {
		return nil, crypto.Account{}, err
	}

	return &Custodial{
		ID:           uuid.NewString(),
		UserID:       userID,
		Address:      keys.Address.String(),
		EncryptedKey: encrypted,
	}, keys, nil
}

// Recover decrypts the stored mnemonic back into a signing account. An
// empty decryption result means the cipher (or chain of ciphers) could
// not open the stored key.
func Recover(a *Custodial, cipher keycipher.Cipher) (crypto.Account, error) {
	words := cipher.Decrypt(a.EncryptedKey)
	if words == "" {
		return crypto.Account{}, fault.Systemf("unable to decrypt key for account %s", a.Address)
	}

	key, err := mnemonic.ToPrivateKey(words)
	if err != nil {
		return crypto.Account{}, fault.Wrap(err)
	}

	keys, err := crypto.AccountFromPrivateKey(key)
	if err != nil {
		return crypto.Account{}, fault.Wrap(err)
	}

	if keys.Address.String() != a.Address {
		return crypto.Account{}, fault.Systemf("decrypted key does not match address %s", a.Address)
	}

	return keys, nil
}
