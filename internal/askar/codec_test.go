package askar

import (
	"testing"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateItemReEncryptsUnderProfileKey(t *testing.T) {
	pk := NewProfileKey(testKeyBundle())
	decrypted := &indy.Decrypted{
		ID:       1,
		Category: []byte("Indy::Credential"),
		Name:     []byte("cred-1"),
		Value:    []byte("payload"),
		Tags: []indy.Tag{
			{Plaintext: 0, Name: []byte("schema_id"), Value: []byte("schema:1.0")},
			{Plaintext: 1, Name: []byte("cred_def_id"), Value: []byte("plain")},
		},
	}

	row, tags, err := UpdateItem(decrypted, pk)
	require.NoError(t, err)
	assert.Equal(t, kindEncrypted, row.Kind)
	require.Len(t, tags, 2)

	category, err := cryptutil.DecryptMerged(row.Category, pk.ICK, false)
	require.NoError(t, err)
	assert.Equal(t, decrypted.Category, category)

	name, err := cryptutil.DecryptMerged(row.Name, pk.INK, false)
	require.NoError(t, err)
	assert.Equal(t, decrypted.Name, name)

	derivedValueKey := cryptutil.DeriveValueKey(decrypted.Category, decrypted.Name, pk.IHK)
	value, err := cryptutil.DecryptMerged(row.Value, derivedValueKey, false)
	require.NoError(t, err)
	assert.Equal(t, decrypted.Value, value)

	encTagName, err := cryptutil.DecryptMerged(tags[0].Name, pk.TNK, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("schema_id"), encTagName)
	encTagValue, err := cryptutil.DecryptMerged(tags[0].Value, pk.TVK, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("schema:1.0"), encTagValue)

	assert.Equal(t, 1, tags[1].Plaintext)
	assert.Equal(t, []byte("plain"), tags[1].Value, "plaintext tag values pass through unencrypted")
}

func TestUpdateItemNilValuePassesThrough(t *testing.T) {
	pk := NewProfileKey(testKeyBundle())
	decrypted := &indy.Decrypted{Category: []byte("Indy::Did"), Name: []byte("did-1")}

	row, tags, err := UpdateItem(decrypted, pk)
	require.NoError(t, err)
	assert.Nil(t, row.Value)
	assert.Empty(t, tags)
}
