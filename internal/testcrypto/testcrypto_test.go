package testcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/nestybox/rotcore/internal/capabilities"
	"github.com/stretchr/testify/require"
)

// TestS3HMACVector is spec.md section 8 scenario S3: HMAC-SHA256 of "Test"
// under key {0x31,0x32,0x33,0x34} must equal the literal digest below.
func TestS3HMACVector(t *testing.T) {
	want, err := hex.DecodeString("8869de579dd0e905e0a711245755" + "94f50a03d3d9cdf16e9a3f9d6c60c0324b54")
	require.NoError(t, err)

	key := []byte{0x31, 0x32, 0x33, 0x34}
	got := HMAC(sha256.New, key, []byte("Test"))
	require.Equal(t, want, got)
}

// TestHMACLawIncrementalMatchesOneShot is property 6: HMAC computed over
// "Te"+"st" fed incrementally must equal HMAC computed over the full
// message in one call, for the same key.
func TestHMACLawIncrementalMatchesOneShot(t *testing.T) {
	key := []byte{0x31, 0x32, 0x33, 0x34}

	oneShot := HMAC(sha256.New, key, []byte("Test"))

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("Te"))
	mac.Write([]byte("st"))
	incremental := mac.Sum(nil)

	require.Equal(t, oneShot, incremental)
}

// TestHMACLawLongKey exercises property 6 with a key longer than the
// hash's block size, the case the law calls out explicitly.
func TestHMACLawLongKey(t *testing.T) {
	longKey := make([]byte, 200)
	for i := range longKey {
		longKey[i] = byte(i)
	}
	msg := []byte("a fairly long message spanning multiple hash blocks of input")

	oneShot := HMAC(sha256.New, longKey, msg)

	mac := hmac.New(sha256.New, longKey)
	for _, chunk := range [][]byte{msg[:10], msg[10:30], msg[30:]} {
		mac.Write(chunk)
	}
	require.Equal(t, oneShot, mac.Sum(nil))
}

// TestSelfTestDetectsPerturbation is property 5: a single-byte
// perturbation of a KAT's expected output must cause SelfTest to report a
// failure rather than silently pass.
func TestSelfTestDetectsPerturbation(t *testing.T) {
	engine := NewHashEngine()
	expected := make([]byte, 32)
	_, err := engine.Calculate(capabilities.HashSHA256, []byte("kat input"), expected)
	require.NoError(t, err)

	good := []capabilities.KATVector{{Name: "sha256-good", Algo: capabilities.HashSHA256, Input: []byte("kat input"), Expected: expected}}
	_, ok := capabilities.SelfTest(engine, good)
	require.True(t, ok)

	bad := []capabilities.KATVector{{Name: "sha256-bad", Algo: capabilities.HashSHA256, Input: []byte("kat input"), Expected: capabilities.Perturb(expected, 3)}}
	name, ok := capabilities.SelfTest(engine, bad)
	require.False(t, ok)
	require.Equal(t, "sha256-bad", name)
}

func TestSignatureVerifierConstantTimeCompare(t *testing.T) {
	v := NewSignatureVerifier()
	digest := []byte{1, 2, 3, 4}

	result, err := v.Verify(nil, digest, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, capabilities.VerifyGood, result)

	result, err = v.Verify(nil, digest, []byte{1, 2, 3, 5})
	require.NoError(t, err)
	require.Equal(t, capabilities.VerifyBad, result)

	result, err = v.Verify(nil, digest, []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, capabilities.VerifyBad, result)
}
