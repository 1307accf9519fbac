package protocol

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnknownAddress   = errors.New("no key for address")
	ErrUnknownNetwork   = errors.New("unknown chain network")
)

// Network carries the address encoding and signed-message magic of a chain.
type Network struct {
	Name   string
	Params *chaincfg.Params
	Magic  string
}

func particlParams(base chaincfg.Params, name string, pkh, sh, wif byte) *chaincfg.Params {
	p := base
	p.Name = name
	p.PubKeyHashAddrID = pkh
	p.ScriptHashAddrID = sh
	p.PrivateKeyID = wif
	return &p
}

var networks = map[string]Network{
	"mainnet": {
		Name:   "mainnet",
		Params: particlParams(chaincfg.MainNetParams, "particl-mainnet", 0x38, 0x3c, 0x6c),
		Magic:  "Bitcoin Signed Message:\n",
	},
	"testnet": {
		Name:   "testnet",
		Params: particlParams(chaincfg.TestNet3Params, "particl-testnet", 0x76, 0x7a, 0x2e),
		Magic:  "Bitcoin Signed Message:\n",
	},
	"regtest": {
		Name:   "regtest",
		Params: particlParams(chaincfg.RegressionNetParams, "particl-regtest", 0x76, 0x7a, 0x2e),
		Magic:  "Bitcoin Signed Message:\n",
	},
}

// LookupNetwork resolves a network by name.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return n, nil
}

func (n Network) messageHash(message string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, n.Magic)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// AddressOf returns the P2PKH address of a compressed public key.
func (n Network) AddressOf(pub *btcec.PublicKey) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), n.Params)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// SignMessage produces a base64 compact signature over message.
func (n Network) SignMessage(key *btcec.PrivateKey, message string) string {
	sig := ecdsa.SignCompact(key, n.messageHash(message), true)
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyMessage checks that signature was produced by the key behind address.
func (n Network) VerifyMessage(address, signature, message string) error {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	pub, compressed, err := ecdsa.RecoverCompact(raw, n.messageHash(message))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var serialized []byte
	if compressed {
		serialized = pub.SerializeCompressed()
	} else {
		serialized = pub.SerializeUncompressed()
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(serialized), n.Params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if addr.EncodeAddress() != address {
		return fmt.Errorf("%w: signer is not %s", ErrInvalidSignature, address)
	}
	return nil
}

// KeySigner signs messages with wallet keys imported as WIF strings.
type KeySigner struct {
	network Network
	keys    map[string]*btcec.PrivateKey
}

// NewKeySigner imports the given WIF keys.
func NewKeySigner(network Network, wifs ...string) (*KeySigner, error) {
	s := &KeySigner{network: network, keys: make(map[string]*btcec.PrivateKey)}
	for _, w := range wifs {
		if _, err := s.Import(w); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Import adds a WIF key and returns its address.
func (s *KeySigner) Import(wifStr string) (string, error) {
	wif, err := btcutil.DecodeWIF(strings.TrimSpace(wifStr))
	if err != nil {
		return "", fmt.Errorf("failed to decode wif: %w", err)
	}
	addr, err := s.network.AddressOf(wif.PrivKey.PubKey())
	if err != nil {
		return "", err
	}
	s.keys[addr] = wif.PrivKey
	return addr, nil
}

// Add registers a raw private key and returns its address.
func (s *KeySigner) Add(key *btcec.PrivateKey) (string, error) {
	addr, err := s.network.AddressOf(key.PubKey())
	if err != nil {
		return "", err
	}
	s.keys[addr] = key
	return addr, nil
}

// SignMessage signs message with the key of address.
func (s *KeySigner) SignMessage(address, message string) (string, error) {
	key, ok := s.keys[address]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	return s.network.SignMessage(key, message), nil
}
