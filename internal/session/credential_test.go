package session

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xolex/xolex/internal/models"
)

func makeToken(payload string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return header + "." + body + ".signature"
}

func TestDecodeCredential_TopLevelClaims(t *testing.T) {
	p := DecodeCredential(makeToken(`{"id":"u-1","name":"Amina","email":"a@x.io"}`))
	assert.Equal(t, models.Principal{ID: "u-1", Name: "Amina", Email: "a@x.io"}, p)
}

func TestDecodeCredential_NestedUser(t *testing.T) {
	p := DecodeCredential(makeToken(`{"user":{"id":17,"name":"Youssef"},"iat":1700000000}`))
	assert.Equal(t, "17", p.ID)
	assert.Equal(t, "Youssef", p.Name)
}

func TestDecodeCredential_NestedUserWithoutID(t *testing.T) {
	p := DecodeCredential(makeToken(`{"user":{"name":"Sara"},"id":"u-9"}`))
	assert.Equal(t, "u-9", p.ID)
	assert.Equal(t, "Sara", p.Name)
}

func TestDecodeCredential_MissingNameFallsBack(t *testing.T) {
	p := DecodeCredential(makeToken(`{"id":"u-1"}`))
	assert.Equal(t, "", p.Name)
	assert.Equal(t, "User", p.DisplayName())
}

func TestDecodeCredential_UTF8Names(t *testing.T) {
	p := DecodeCredential(makeToken(`{"name":"Zoë Ñúñez"}`))
	assert.Equal(t, "Zoë Ñúñez", p.Name)
}

func TestDecodeCredential_StandardAlphabetAndPadding(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte(`{"name":"??>>?"}`))
	require.Contains(t, body, "+")
	require.Contains(t, body, "=")
	p := DecodeCredential("h." + body + ".s")
	assert.Equal(t, "??>>?", p.Name)
}

func TestDecodeCredential_MalformedNeverFails(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no delimiter":   "abcdef",
		"empty payload":  "a..c",
		"bad base64":     "a.@@@.c",
		"not json":       "a." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".c",
		"json array":     makeToken(`[1,2,3]`),
		"wrong types":    makeToken(`{"name": 12}`),
		"invalid utf8":   "a." + base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xfe, '{', '}'}) + ".c",
		"trailing dot":   "a.",
		"only delimiter": ".",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				p := DecodeCredential(token)
				assert.True(t, p.IsZero())
			})
		})
	}
}

func TestDecode_ReportsStep(t *testing.T) {
	_, err := decode("a.@@@.c")
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "base64", de.Step)
}

type fakeCredentialStore struct {
	values map[string]string
	err    error
	reads  int
}

func (f *fakeCredentialStore) GetValue(key string) (string, error) {
	f.reads++
	return f.values[key], f.err
}

func TestInit_ReadsOnce(t *testing.T) {
	st := &fakeCredentialStore{values: map[string]string{TokenKey: makeToken(`{"id":"u-1","name":"Amina"}`)}}

	c, err := Init(st, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, st.reads)
	assert.True(t, c.Authenticated())
	assert.Equal(t, "u-1", c.Principal().ID)

	st.values[TokenKey] = makeToken(`{"id":"u-2"}`)
	assert.Equal(t, "u-1", c.Principal().ID)
	assert.Equal(t, 1, st.reads)
}

func TestInit_NoCredential(t *testing.T) {
	c, err := Init(&fakeCredentialStore{values: map[string]string{}}, nil)
	require.NoError(t, err)
	assert.False(t, c.Authenticated())
	assert.True(t, c.Principal().IsZero())
}

func TestInit_StoreError(t *testing.T) {
	_, err := Init(&fakeCredentialStore{err: errors.New("disk gone")}, nil)
	assert.ErrorContains(t, err, "disk gone")
}
