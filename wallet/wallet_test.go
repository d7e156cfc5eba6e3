package wallet_test

import (
	"path/filepath"
	"testing"

	"github.com/Artfain/powchain/core"
	"github.com/Artfain/powchain/wallet"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	w, err := wallet.New()
	require.NoError(t, err)

	tx, err := w.NewTransaction("bob", core.Coins(3))
	require.NoError(t, err)
	require.Equal(t, w.PublicKey, tx.Sender)
	require.True(t, wallet.Verifier{}.Verify(tx))

	tampered := tx
	tampered.Amount = core.Coins(4)
	require.False(t, wallet.Verifier{}.Verify(tampered))

	other, err := wallet.New()
	require.NoError(t, err)
	stolen := tx
	stolen.Sender = other.PublicKey
	require.False(t, wallet.Verifier{}.Verify(stolen))

	garbage := tx
	garbage.Signature = "zz"
	require.False(t, wallet.Verifier{}.Verify(garbage))
	garbage.Sender = "not hex"
	require.False(t, wallet.Verifier{}.Verify(garbage))
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet-5000.txt")

	w, created, err := wallet.LoadOrCreate(path)
	require.NoError(t, err)
	require.True(t, created)

	loaded, created, err := wallet.LoadOrCreate(path)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, w.PublicKey, loaded.PublicKey)

	tx, err := loaded.NewTransaction("bob", core.Coins(1))
	require.NoError(t, err)
	require.True(t, wallet.Verifier{}.Verify(tx))
}

func TestFromKeysMismatch(t *testing.T) {
	a, err := wallet.New()
	require.NoError(t, err)
	b, err := wallet.New()
	require.NoError(t, err)

	_, err = wallet.FromKeys(a.PublicKey, b.PrivateKey)
	require.ErrorIs(t, err, wallet.ErrMalformedKey)
	_, err = wallet.FromKeys("xyz", a.PrivateKey)
	require.ErrorIs(t, err, wallet.ErrMalformedKey)
}

func TestWalletWithNode(t *testing.T) {
	w, err := wallet.New()
	require.NoError(t, err)
	node := core.NewNode("wallet", wallet.Verifier{}, core.WithPublicKey(w.PublicKey))

	_, err = node.Mine(t.Context())
	require.NoError(t, err)

	tx, err := w.NewTransaction("bob", core.Coins(6))
	require.NoError(t, err)
	require.NoError(t, node.SubmitTransaction(t.Context(), tx))

	b, err := node.Mine(t.Context())
	require.NoError(t, err)
	require.Len(t, b.Transactions, 2)
	require.Equal(t, core.Coins(14), node.Balance(w.PublicKey))
}
