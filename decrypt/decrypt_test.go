package decrypt_test

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rkeyd/rkeyd/decrypt"
	"github.com/rkeyd/rkeyd/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4/vfst"
)

func TestDecrypt(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "decrypt test suite")
}

// encryptBlob builds a blob the way openssl enc -aes-256-cbc -pbkdf2
// -md sha256 does, which is the format the decryptor expects.
func encryptBlob(plain, secret []byte) []byte {
	salt := []byte("8bytsalt")
	keyiv := pbkdf2.Key(secret, salt, 10000, 48, sha256.New)
	block, err := aes.NewCipher(keyiv[:32])
	Expect(err).ToNot(HaveOccurred())

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, 0, len(plain)+pad)
	padded = append(padded, plain...)
	for i := 0; i < pad; i++ {
		padded = append(padded, byte(pad))
	}

	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, keyiv[32:]).CryptBlocks(ct, padded)

	blob := append([]byte("Salted__"), salt...)
	return append(blob, ct...)
}

var _ = Describe("Decryptor", func() {
	var d *decrypt.Decryptor
	var cleanup func()

	newDecryptor := func(files map[string]interface{}) {
		fsys, c, err := vfst.NewTestFS(files)
		Expect(err).ToNot(HaveOccurred())
		cleanup = c
		d = &decrypt.Decryptor{FS: fsys, KeyBase: "/etc/rkeyd/key", Log: types.NewNullLogger()}
	}

	AfterEach(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	Describe("with a valid blob for tank", func() {
		BeforeEach(func() {
			newDecryptor(map[string]interface{}{
				"/etc/rkeyd/key-tank": encryptBlob([]byte("correct-horse"), []byte("abc123")),
			})
		})

		It("decrypts with the right secret", func() {
			pass, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeTrue())
			Expect(string(pass)).To(Equal("correct-horse"))
		})

		It("is idempotent over an unmodified blob", func() {
			first, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeTrue())
			second, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeTrue())
			Expect(second).To(Equal(first))
		})

		It("fails softly with the wrong secret", func() {
			pass, ok := d.Decrypt("tank", []byte("wrong"))
			Expect(ok).To(BeFalse())
			Expect(pass).To(BeNil())
		})

		It("fails softly on empty volume or secret", func() {
			_, ok := d.Decrypt("", []byte("abc123"))
			Expect(ok).To(BeFalse())
			_, ok = d.Decrypt("tank", nil)
			Expect(ok).To(BeFalse())
		})

		It("fails softly for a volume with no blob", func() {
			_, ok := d.Decrypt("data", []byte("abc123"))
			Expect(ok).To(BeFalse())
		})
	})

	Describe("with corrupt blobs", func() {
		It("rejects a truncated blob", func() {
			newDecryptor(map[string]interface{}{
				"/etc/rkeyd/key-tank": []byte("Salted__shrt"),
			})
			_, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeFalse())
		})

		It("rejects a blob without the salt header", func() {
			blob := encryptBlob([]byte("correct-horse"), []byte("abc123"))
			blob[0] = 'X'
			newDecryptor(map[string]interface{}{
				"/etc/rkeyd/key-tank": blob,
			})
			_, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeFalse())
		})

		It("rejects a blob with misaligned ciphertext", func() {
			blob := encryptBlob([]byte("correct-horse"), []byte("abc123"))
			blob = blob[:len(blob)-1]
			newDecryptor(map[string]interface{}{
				"/etc/rkeyd/key-tank": blob,
			})
			_, ok := d.Decrypt("tank", []byte("abc123"))
			Expect(ok).To(BeFalse())
		})
	})
})
