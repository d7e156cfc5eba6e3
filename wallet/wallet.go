// Package wallet holds the key pair of a node and signs transactions with
// Schnorr signatures over Ed25519. The hex encoded public key doubles as the
// participant identity carried in the sender field.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Artfain/powchain/core"
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/sign/schnorr"
	"go.dedis.ch/kyber/v4/suites"
	"go.dedis.ch/kyber/v4/util/key"
)

var suite suites.Suite = suites.MustFind("Ed25519")

var ErrMalformedKey = errors.New("malformed key")

// Wallet is a key pair. PublicKey and PrivateKey are hex encoded.
type Wallet struct {
	PublicKey  string
	PrivateKey string

	private kyber.Scalar
}

// New generates a fresh key pair.
func New() (*Wallet, error) {
	pair := key.NewKeyPair(suite)
	pub, err := pair.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	priv, err := pair.Private.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return &Wallet{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
		private:    pair.Private,
	}, nil
}

// FromKeys rebuilds a wallet from hex encoded keys.
func FromKeys(publicKey, privateKey string) (*Wallet, error) {
	pub, err := decodePoint(publicKey)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	priv := suite.Scalar()
	if err := priv.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if !suite.Point().Mul(priv, nil).Equal(pub) {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrMalformedKey)
	}
	return &Wallet{PublicKey: publicKey, PrivateKey: privateKey, private: priv}, nil
}

// Load reads a wallet file: the public key on the first line, the private key on the second.
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Fields(string(data))
	if len(lines) != 2 {
		return nil, fmt.Errorf("%w: expected 2 lines in %s, got %d", ErrMalformedKey, path, len(lines))
	}
	return FromKeys(lines[0], lines[1])
}

// Save writes the wallet file readable by Load.
func (w *Wallet) Save(path string) error {
	return os.WriteFile(path, []byte(w.PublicKey+"\n"+w.PrivateKey+"\n"), 0600)
}

// LoadOrCreate loads the wallet at path, creating and saving a new one if the file does not exist.
func LoadOrCreate(path string) (*Wallet, bool, error) {
	w, err := Load(path)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	w, err = New()
	if err != nil {
		return nil, false, err
	}
	if err := w.Save(path); err != nil {
		return nil, false, fmt.Errorf("failed to save wallet: %w", err)
	}
	return w, true, nil
}

// Sign returns the hex signature of a transfer from this wallet.
func (w *Wallet) Sign(recipient string, amount core.Amount) (string, error) {
	tx := core.Transaction{Sender: w.PublicKey, Recipient: recipient, Amount: amount}
	sig, err := schnorr.Sign(suite, w.private, tx.SigningBytes())
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// NewTransaction builds a signed transfer from this wallet.
func (w *Wallet) NewTransaction(recipient string, amount core.Amount) (core.Transaction, error) {
	sig, err := w.Sign(recipient, amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Sender:    w.PublicKey,
		Recipient: recipient,
		Amount:    amount,
		Signature: sig,
	}, nil
}

// Verifier checks that a transaction was signed by the key named in its sender field.
type Verifier struct{}

func (Verifier) Verify(tx core.Transaction) bool {
	pub, err := decodePoint(tx.Sender)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(tx.Signature)
	if err != nil {
		return false
	}
	return schnorr.Verify(suite, pub, tx.SigningBytes(), sig) == nil
}

func decodePoint(s string) (kyber.Point, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return p, nil
}
