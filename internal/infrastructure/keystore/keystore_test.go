package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWIF(t *testing.T) string {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, &chaincfg.MainNetParams, true)
	require.NoError(t, err)
	return wif.String()
}

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.keys")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	a, b := newWIF(t), newWIF(t)
	path := write(t, "# seller\n"+a+"\n\n  "+b+"  \n"+a+"\n")

	keys, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, keys)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to open keystore")

	_, err = LoadFile(write(t, newWIF(t)+"\nnot-a-key\n"))
	assert.ErrorContains(t, err, "keystore line 2")
}
