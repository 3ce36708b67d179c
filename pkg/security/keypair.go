package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// KeyPair is the Master's RSA identity used for the mutual-authentication
// handshake with a connecting Node (spec §4.2). Unlike the certificate
// authority this replaces, there is no chain of trust: the Master has one
// keypair, and each Node is trusted on first use.
type KeyPair struct {
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a fresh 2048-bit RSA keypair for the Master.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{Private: key}, nil
}

// PublicKeyBytes returns the PKIX-encoded public key, the form exchanged
// over the wire and persisted on a Node record.
func (kp *KeyPair) PublicKeyBytes() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&kp.Private.PublicKey)
}

// Sign produces a PKCS#1 v1.5 signature over the SHA-256 digest of data.
func (kp *KeyPair) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, kp.Private, crypto.SHA256, digest[:])
}

// ParsePublicKey decodes a PKIX-encoded RSA public key as presented by a
// node during the handshake.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaPub, nil
}

// VerifySignature checks a signature produced by Sign against the given
// RSA public key.
func VerifySignature(pub *rsa.PublicKey, data, signature []byte) error {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}

// MarshalPrivateKey PKCS#8-encodes the Master's private key for storage.
func (kp *KeyPair) MarshalPrivateKey() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.Private)
	if err != nil {
		return nil, fmt.Errorf("marshal master private key: %w", err)
	}
	return der, nil
}

// LoadKeyPair decodes a PKCS#8-encoded RSA private key, the inverse of
// MarshalPrivateKey, for reloading the Master's identity across restarts.
func LoadKeyPair(der []byte) (*KeyPair, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse master private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("master private key is not RSA")
	}
	return &KeyPair{Private: rsaKey}, nil
}

// SameKey reports whether two PKIX-encoded public keys are byte-identical.
// Used by node admission to detect a key presented by a second node that
// already belongs to another paired node (spec §4.2 duplicate suppression).
func SameKey(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
