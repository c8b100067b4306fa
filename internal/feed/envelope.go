// Package feed decodes the proprietary CAD vendor feed: an encrypted JSON
// envelope whose plaintext is a list of loosely-shaped incident records.
//
// The envelope is the OpenSSL "enc" construction as produced by the
// vendor's client library: the symmetric key is derived by iterative MD5
// hashing of (password, running hash, salt) until 32 bytes are available
// (EVP_BytesToKey), and the payload is AES-256-CBC with PKCS#7 padding.
// The plaintext is sometimes a JSON-encoded string containing JSON (double
// encoding); Open parses a second time when the first pass yields a string.
package feed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const keyLen = 32

// Envelope is the wire shape of one encrypted feed payload.
type Envelope struct {
	CT string `json:"ct"` // base64 ciphertext
	IV string `json:"iv"` // hex initialization vector
	S  string `json:"s"`  // hex salt
}

// DecryptionError indicates a malformed envelope or cipher mismatch. It is
// fatal to the single fetch that produced it; sibling fetches continue.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt feed payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt feed payload: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// ParseError indicates the decrypted plaintext was not valid JSON after up
// to two decode passes.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse feed plaintext: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Open decrypts an envelope with the shared feed password and returns the
// decoded JSON value. Pure function: no I/O, no side effects; it runs on
// every fetched payload.
func Open(env Envelope, password string) (any, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return nil, &DecryptionError{Reason: "ciphertext is not base64", Err: err}
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, &DecryptionError{Reason: "iv is not hex", Err: err}
	}
	salt, err := hex.DecodeString(env.S)
	if err != nil {
		return nil, &DecryptionError{Reason: "salt is not hex", Err: err}
	}
	if len(iv) != aes.BlockSize {
		return nil, &DecryptionError{Reason: fmt.Sprintf("iv length %d, want %d", len(iv), aes.BlockSize)}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptionError{Reason: fmt.Sprintf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext))}
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, &DecryptionError{Reason: "cipher init", Err: err}
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = stripPadding(plaintext)
	if err != nil {
		return nil, &DecryptionError{Reason: "bad padding (wrong password?)", Err: err}
	}

	var decoded any
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return nil, &ParseError{Err: err}
	}
	// Double encoding: the plaintext may itself be a JSON-encoded string.
	if inner, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
			return nil, &ParseError{Err: err}
		}
	}
	return decoded, nil
}

// Seal encrypts a JSON-serializable value into an envelope with a random
// salt and IV. Used by the fixture generator and the round-trip tests;
// production traffic only ever opens envelopes.
func Seal(v any, password string) (Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal feed payload: %w", err)
	}

	salt := make([]byte, 8)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, fmt.Errorf("seal feed payload: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("seal feed payload: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return Envelope{}, fmt.Errorf("seal feed payload: %w", err)
	}

	padded := addPadding(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return Envelope{
		CT: base64.StdEncoding.EncodeToString(ciphertext),
		IV: hex.EncodeToString(iv),
		S:  hex.EncodeToString(salt),
	}, nil
}

// deriveKey implements EVP_BytesToKey with an MD5 digest: hash
// (password|salt), then repeatedly (prev|password|salt), concatenating
// digests until keyLen bytes are available.
func deriveKey(password string, salt []byte) []byte {
	var key []byte
	var prev []byte
	for len(key) < keyLen {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		h.Write(salt)
		prev = h.Sum(nil)
		key = append(key, prev...)
	}
	return key[:keyLen]
}

func addPadding(data []byte) []byte {
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func stripPadding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-pad], nil
}
