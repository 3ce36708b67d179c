// Package security provides the cryptographic primitives the coordinator
// needs: an RSA KeyPair for the Master's mutual-authentication handshake
// with connecting nodes (trust-on-first-use), and AES-256-GCM encryption
// for secrets at rest, including the Master's own private key.
package security
