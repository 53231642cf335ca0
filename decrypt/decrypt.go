// Package decrypt turns a remote-supplied secret into the passphrase for
// a volume by decrypting the volume's locally stored key blob. The blob
// format matches `openssl enc -aes-256-cbc -pbkdf2 -md sha256`, which is
// what produces the blobs out of band.
package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rkeyd/rkeyd/types"
)

const (
	saltHeader = "Salted__"
	saltLen    = 8
	keyLen     = 32
	ivLen      = aes.BlockSize
	iterations = 10000
)

// Decryptor reads per-volume key blobs from KeyBase + "-" + volume and
// decrypts them with a key derived from a remote secret. Every failure is
// soft and indistinguishable from a wrong secret.
type Decryptor struct {
	FS      types.FS
	KeyBase string
	Log     types.RkeydLogger
}

// Decrypt returns the passphrase for volume, or ok=false when the blob is
// missing, corrupt or the secret is wrong. The caller owns the returned
// bytes and is expected to wipe them after use.
func (d *Decryptor) Decrypt(volume string, secret []byte) ([]byte, bool) {
	if volume == "" || len(secret) == 0 {
		return nil, false
	}

	blobPath := fmt.Sprintf("%s-%s", d.KeyBase, volume)
	blob, err := d.FS.ReadFile(blobPath)
	if err != nil {
		d.Log.Logger.Debug().Str("path", blobPath).Err(err).Msg("key blob not readable")
		return nil, false
	}

	plain, err := decryptBlob(blob, secret)
	if err != nil {
		d.Log.Logger.Debug().Str("volume", volume).Err(err).Msg("key blob decryption failed")
		return nil, false
	}
	return plain, true
}

func decryptBlob(blob, secret []byte) ([]byte, error) {
	if len(blob) < len(saltHeader)+saltLen+aes.BlockSize {
		return nil, fmt.Errorf("blob too short: %d bytes", len(blob))
	}
	if !bytes.HasPrefix(blob, []byte(saltHeader)) {
		return nil, fmt.Errorf("missing salt header")
	}
	salt := blob[len(saltHeader) : len(saltHeader)+saltLen]
	ciphertext := blob[len(saltHeader)+saltLen:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block aligned")
	}

	// openssl derives key and IV in one PBKDF2 pass
	keyiv := pbkdf2.Key(secret, salt, iterations, keyLen+ivLen, sha256.New)
	defer Wipe(keyiv)

	block, err := aes.NewCipher(keyiv[:keyLen])
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, keyiv[keyLen:]).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain)
	if err != nil {
		Wipe(plain)
		return nil, err
	}
	return unpadded, nil
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

// Wipe zeroes b in place. Secrets and passphrases go through here on
// every exit path so no copy outlives its single use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
