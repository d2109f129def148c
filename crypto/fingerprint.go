package crypto

import "crypto/sha256"

// FingerprintSize is the size of a fingerprint digest in bytes.
const FingerprintSize = sha256.Size

// Fingerprint computes a fixed-length, non-secret SHA-256 digest used for
// identification of devices, payloads, and cross-channel binding. It provides
// no confidentiality.
func Fingerprint(data []byte) [FingerprintSize]byte {
	return sha256.Sum256(data)
}
