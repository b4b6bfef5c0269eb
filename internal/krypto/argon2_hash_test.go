package krypto_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/willemschots/newsletter/internal/krypto"
)

func failTextToArgon2Hash() map[string]string {
	return map[string]string{
		"fail, empty":                   "",
		"fail, missing sections":        "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw",
		"fail, no leading dollar":       "argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0$",
		"fail, wrong variant":           "$argon2i$v=19$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, missing version":         "$argon2id$19$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-numeric version":     "$argon2id$v=abc$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-matching version":    "$argon2id$v=18$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-numeric memory":      "$argon2id$v=19$m=abc,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-numeric iterations":  "$argon2id$v=19$m=47104,t=abc,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-numeric parallelism": "$argon2id$v=19$m=47104,t=1,p=abc$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, parameters out of order": "$argon2id$v=19$t=1,m=47104,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, zero iterations":         "$argon2id$v=19$m=47104,t=0,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, zero parallelism":        "$argon2id$v=19$m=47104,t=1,p=0$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, parallelism overflows":   "$argon2id$v=19$m=47104,t=1,p=256$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, excessive memory":        "$argon2id$v=19$m=4294967295,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, too little memory":       "$argon2id$v=19$m=7,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-base64 salt":         "$argon2id$v=19$m=47104,t=1,p=1$???????????????????????????????????????????$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, non-base64 hash":         "$argon2id$v=19$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$??????????????????????",
		"fail, padded base64 salt":      "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw==$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0",
		"fail, salt too short":          "$argon2id$v=19$m=47104,t=1,p=1$AAAA$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0",
		"fail, empty hash":              "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$",
		"fail, extra parameter (keyid)": "$argon2id$v=19$m=47104,t=1,p=1,keyid=abc$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0",
		"fail, trailing separator":      "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0$",
		"fail, signed version":          "$argon2id$v=+19$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, leading zero version":    "$argon2id$v=019$m=47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, signed memory":           "$argon2id$v=19$m=+47104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, leading zero memory":     "$argon2id$v=19$m=047104,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, leading zero iterations": "$argon2id$v=19$m=47104,t=01,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, signed parallelism":      "$argon2id$v=19$m=47104,t=1,p=+1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
		"fail, empty memory":            "$argon2id$v=19$m=,t=1,p=1$fYJT8cAysfuYCBjxTEmCkaCz0RfRtlLQOw2Fj8gM5Uw$DVpK1dNdPRmhL8oTSo+RlA",
	}
}

type argon2HashTest struct {
	raw     string
	hashStr string
	hash    krypto.Argon2Hash
}

func okTextToArgon2Hash(t *testing.T) map[string]argon2HashTest {
	return map[string]argon2HashTest{
		"application parameters": {
			raw:     "12345678",
			hashStr: "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0",
			hash: krypto.Argon2Hash{
				Variant:     "argon2id",
				Version:     19,
				MemoryKiB:   47104,
				Iterations:  1,
				Parallelism: 1,
				Salt: []byte{
					0xbc, 0xff, 0x54, 0xe0, 0x2e, 0x63, 0xb0, 0xec,
					0xc5, 0x40, 0xb8, 0xf4, 0x82, 0xf5, 0x24, 0x63,
				},
				Hash: []byte{
					0x60, 0xba, 0xd2, 0x6f, 0x67, 0x46, 0x7d, 0xc5,
					0x68, 0x86, 0x59, 0xbc, 0xb3, 0x2c, 0xa7, 0xa8,
					0x7b, 0x3a, 0xfc, 0xd1, 0xf1, 0x5d, 0x2f, 0x6b,
					0xb7, 0xfb, 0x7a, 0x4e, 0x32, 0xfb, 0xa6, 0x2d,
				},
			},
		},
		// Taken from the test vectors of the argon2 package.
		"reference test vector": {
			raw:     "password",
			hashStr: "$argon2id$v=19$m=64,t=1,p=1$c29tZXNhbHQ$ZVrRXqxlLcWfcXCnMyv0m4Rpvh/bnCi7",
			hash: krypto.Argon2Hash{
				Variant:     "argon2id",
				Version:     19,
				MemoryKiB:   64,
				Iterations:  1,
				Parallelism: 1,
				Salt:        []byte("somesalt"),
				Hash:        mustHexDecodeString(t, "655ad15eac652dc59f7170a7332bf49b8469be1fdb9c28bb"),
			},
		},
	}
}

func Test_HashArgon2(t *testing.T) {
	t.Run("ok, default parameters", func(t *testing.T) {
		raw := []byte("correcthorse")

		got, err := krypto.HashArgon2(raw, krypto.DefaultArgon2Params)
		if err != nil {
			t.Fatalf("failed to hash argon2: %v", err)
		}

		want := "$argon2id$v=19$m=15000,t=2,p=1$"
		if s := got.Encode(); !strings.HasPrefix(s, want) {
			t.Errorf("expected encoded hash to start with %s, got %s", want, s)
		}

		if len(got.Salt) != 16 || len(got.Hash) != 32 {
			t.Errorf("expected 16 byte salt and 32 byte hash, got %d and %d", len(got.Salt), len(got.Hash))
		}

		if !got.MatchBytes(raw) {
			t.Errorf("expected raw value to match hash, but it did not")
		}

		if got.MatchBytes([]byte("correcthorsf")) {
			t.Errorf("expected other value not to match hash, but it did")
		}
	})

	t.Run("ok, salt is random", func(t *testing.T) {
		raw := []byte("correcthorse")

		h1 := must(krypto.HashArgon2(raw, krypto.DefaultArgon2Params))
		h2 := must(krypto.HashArgon2(raw, krypto.DefaultArgon2Params))

		if bytes.Equal(h1.Salt, h2.Salt) || bytes.Equal(h1.Hash, h2.Hash) {
			t.Errorf("expected different salts and hashes for the same input")
		}
	})

	t.Run("ok, encoded hash round trips", func(t *testing.T) {
		h := must(krypto.HashArgon2([]byte("newpass"), krypto.DefaultArgon2Params))

		got, err := krypto.ParseArgon2Hash(h.Encode())
		if err != nil {
			t.Fatalf("failed to parse argon2 hash: %v", err)
		}

		if !reflect.DeepEqual(got, h) {
			t.Errorf("got\n%#v\nwant\n%#v\n", got.Encode(), h.Encode())
		}
	})

	failInput := map[string][]byte{
		"fail, nil":   nil,
		"fail, empty": {},
	}

	for name, raw := range failInput {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.HashArgon2(raw, krypto.DefaultArgon2Params)
			if !errors.Is(err, krypto.ErrInvalidInput) {
				t.Fatalf("expected %v, but got %v (via errors.Is)", krypto.ErrInvalidInput, err)
			}
		})
	}

	failParams := map[string]func(p *krypto.Argon2Params){
		"fail, zero iterations":  func(p *krypto.Argon2Params) { p.Iterations = 0 },
		"fail, zero parallelism": func(p *krypto.Argon2Params) { p.Parallelism = 0 },
		"fail, too little memory": func(p *krypto.Argon2Params) {
			p.Parallelism = 4
			p.MemoryKiB = 31
		},
		"fail, short salt": func(p *krypto.Argon2Params) { p.SaltBytes = 4 },
		"fail, short hash": func(p *krypto.Argon2Params) { p.HashBytes = 3 },
	}

	for name, mf := range failParams {
		t.Run(name, func(t *testing.T) {
			p := krypto.DefaultArgon2Params
			mf(&p)

			_, err := krypto.HashArgon2([]byte("correcthorse"), p)
			if !errors.Is(err, krypto.ErrInvalidInput) {
				t.Fatalf("expected %v, but got %v (via errors.Is)", krypto.ErrInvalidInput, err)
			}
		})
	}
}

func Test_ParseArgon2Hash(t *testing.T) {
	for name, tc := range okTextToArgon2Hash(t) {
		t.Run("ok, "+name, func(t *testing.T) {
			got, err := krypto.ParseArgon2Hash(tc.hashStr)
			if err != nil {
				t.Fatalf("failed to parse argon2 hash: %v", err)
			}

			// The parsed hash should match the existing hash exactly.
			if !reflect.DeepEqual(got, tc.hash) {
				t.Errorf("wanted\n%s\nbut got\n%s\n", tc.hash.Encode(), got.Encode())
			}

			// Encoding the parsed hash gives back the exact input.
			if enc := got.Encode(); enc != tc.hashStr {
				t.Errorf("round trip changed the hash:\n%s\nto\n%s\n", tc.hashStr, enc)
			}

			// The raw value should match the parsed hash.
			if !got.MatchBytes([]byte(tc.raw)) {
				t.Errorf("expected raw value to match hash, but it did not")
			}
		})
	}

	for name, txt := range failTextToArgon2Hash() {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.ParseArgon2Hash(txt)
			if !errors.Is(err, krypto.ErrInvalidInput) {
				t.Fatalf("expected error to match (using errors.Is)\n%v\ngot\n%v\n", krypto.ErrInvalidInput, err)
			}

			// Parts of the hash should never end up in error messages.
			if txt != "" && strings.Contains(err.Error(), txt) {
				t.Errorf("error message %q contains the input", err.Error())
			}
		})
	}
}

func Test_Argon2Hash_Encode(t *testing.T) {
	for name, tc := range okTextToArgon2Hash(t) {
		t.Run("ok, "+name, func(t *testing.T) {
			got := tc.hash.Encode()
			if got != tc.hashStr {
				t.Errorf("got\n%s\nwant\n%s\n", got, tc.hashStr)
			}

			v, err := tc.hash.Value()
			if err != nil {
				t.Fatalf("failed to get driver value: %v", err)
			}

			if v != tc.hashStr {
				t.Errorf("got driver value\n%v\nwant\n%s\n", v, tc.hashStr)
			}
		})
	}
}

func Test_Argon2Hash_MatchBytes(t *testing.T) {
	t.Run("ok, does not match other value", func(t *testing.T) {
		h := must(krypto.ParseArgon2Hash("$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0"))
		if h.MatchBytes([]byte("12345679")) {
			t.Errorf("expected value not to match")
		}
	})

	invalid := map[string]func(h *krypto.Argon2Hash){
		"zero value":       func(h *krypto.Argon2Hash) { *h = krypto.Argon2Hash{} },
		"wrong variant":    func(h *krypto.Argon2Hash) { h.Variant = "argon2i" },
		"wrong version":    func(h *krypto.Argon2Hash) { h.Version = 16 },
		"zero iterations":  func(h *krypto.Argon2Hash) { h.Iterations = 0 },
		"zero parallelism": func(h *krypto.Argon2Hash) { h.Parallelism = 0 },
		"excessive memory": func(h *krypto.Argon2Hash) { h.MemoryKiB = 1<<32 - 1 },
		"empty digest":     func(h *krypto.Argon2Hash) { h.Hash = nil },
		"truncated salt":   func(h *krypto.Argon2Hash) { h.Salt = h.Salt[:2] },
	}

	for name, mf := range invalid {
		t.Run("fail, "+name, func(t *testing.T) {
			h := must(krypto.ParseArgon2Hash("$argon2id$v=19$m=64,t=1,p=1$c29tZXNhbHQ$ZVrRXqxlLcWfcXCnMyv0m4Rpvh/bnCi7"))
			mf(&h)

			// Should not panic and should never match.
			if h.MatchBytes([]byte("password")) {
				t.Errorf("expected invalid hash not to match")
			}
		})
	}
}

func Test_Argon2Hash_PreventExposure(t *testing.T) {
	hashStr := "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0"
	h := must(krypto.ParseArgon2Hash(hashStr))

	t.Run("ok, fmt", func(t *testing.T) {
		for _, verb := range []string{"%s", "%v", "%+v", "%#v", "%q"} {
			got := fmt.Sprintf(verb, h)
			if got != krypto.SecretMarker {
				t.Errorf("%s: wanted\n%s\ngot\n%s\n", verb, krypto.SecretMarker, got)
			}
		}
	})

	t.Run("ok, log output", func(t *testing.T) {
		var buf bytes.Buffer

		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		logger.Info("attempting to log a hash", "hash", h)

		s := buf.String()
		if !strings.Contains(s, krypto.SecretMarker) {
			t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
		}

		if strings.Contains(s, "vP9U4C5jsOzFQLj0gvUkYw") {
			t.Errorf("log output\n%s\ncontains the salt", s)
		}
	})
}

func mustHexDecodeString(t *testing.T, str string) []byte {
	t.Helper()

	b, err := hex.DecodeString(str)
	if err != nil {
		t.Fatalf("failed to decode hex string: %v", err)
	}

	return b
}

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}
