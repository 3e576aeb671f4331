// Package upgrade implements the post-upgrade record transformer (§4.5):
// it re-categorises Indy-named records in a finalized Askar store into the
// Askar category/tag conventions, one category at a time, batches of 50
// per transaction, source removed before the replacement is inserted so
// the pass is idempotent on repeated invocation.
package upgrade

import (
	"context"
	"crypto/ed25519"
	"encoding/json"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askarstore"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/mr-tron/base58"
)

const batchSize = 50

// Run drives the full post-upgrade pass over store for one profile.
func Run(ctx context.Context, store *askarstore.Store) error {
	if err := transformKeys(ctx, store); err != nil {
		return err
	}
	if err := transformMasterSecret(ctx, store); err != nil {
		return err
	}
	if err := transformDid(ctx, store); err != nil {
		return err
	}
	for _, rc := range rawCategories {
		if err := transformRaw(ctx, store, rc.indy, rc.askar); err != nil {
			return err
		}
	}
	if err := transformCredentialDefinitions(ctx, store); err != nil {
		return err
	}
	if err := transformCredentials(ctx, store); err != nil {
		return err
	}
	return nil
}

// drainBatches repeatedly fetches up to batchSize records from srcCategory
// and hands each to transform, inside one transaction per batch, until a
// batch comes back empty.
func drainBatches(ctx context.Context, store *askarstore.Store, srcCategory string, transform func(tx *askarstore.Tx, rec *askarstore.Record) error) error {
	for {
		tx, err := store.Transaction(ctx)
		if err != nil {
			return err
		}
		records, err := tx.FetchAll(ctx, srcCategory, batchSize)
		if err != nil {
			tx.Rollback()
			return err
		}
		if len(records) == 0 {
			tx.Rollback()
			return nil
		}
		for _, rec := range records {
			if err := tx.Remove(ctx, srcCategory, rec.Name); err != nil {
				tx.Rollback()
				return err
			}
			if err := transform(tx, rec); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
}

func transformRaw(ctx context.Context, store *askarstore.Store, srcCategory, dstCategory string) error {
	return drainBatches(ctx, store, srcCategory, func(tx *askarstore.Tx, rec *askarstore.Record) error {
		return tx.Insert(ctx, dstCategory, rec.Name, rec.Value, nil)
	})
}

type keyValue struct {
	Signkey string `json:"signkey"`
}

func transformKeys(ctx context.Context, store *askarstore.Store) error {
	return drainBatches(ctx, store, IndyKey, func(tx *askarstore.Tx, rec *askarstore.Record) error {
		var kv keyValue
		if err := json.Unmarshal(rec.Value, &kv); err != nil {
			return walleterr.Wrap(walleterr.IOError, "key: decode value json", err)
		}
		decoded, err := base58.Decode(kv.Signkey)
		if err != nil {
			return walleterr.Wrap(walleterr.IOError, "key: base58 decode signkey", err)
		}
		if len(decoded) < 32 {
			return walleterr.New(walleterr.MalformedKeyBundle, "key: signkey shorter than 32 bytes")
		}
		seed := decoded[:32]
		priv := ed25519.NewKeyFromSeed(seed)

		metadata, err := fetchCompanionMetadata(ctx, tx, IndyKeyMetadata, rec.Name)
		if err != nil {
			return err
		}

		return tx.InsertKey(ctx, rec.Name, []byte(priv), metadata)
	})
}

func fetchCompanionMetadata(ctx context.Context, tx *askarstore.Tx, metaCategory, name string) (string, error) {
	meta, err := tx.Fetch(ctx, metaCategory, name)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", nil
	}
	if err := tx.Remove(ctx, metaCategory, name); err != nil {
		return "", err
	}
	return string(meta.Value), nil
}

func transformMasterSecret(ctx context.Context, store *askarstore.Store) error {
	tx, err := store.Transaction(ctx)
	if err != nil {
		return err
	}
	records, err := tx.FetchAll(ctx, IndyMasterSecret, 0)
	if err != nil {
		tx.Rollback()
		return err
	}
	if len(records) == 0 {
		return tx.Commit()
	}
	if len(records) > 1 {
		tx.Rollback()
		return walleterr.New(walleterr.DuplicateMasterSecret, "more than one Indy::MasterSecret record")
	}
	rec := records[0]
	if err := tx.Remove(ctx, IndyMasterSecret, rec.Name); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Insert(ctx, AskarMasterSecret, masterSecretDefaultName, rec.Value, nil); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type didValue struct {
	DID    string          `json:"did"`
	Verkey string          `json:"verkey"`
	Meta   json.RawMessage `json:"metadata,omitempty"`
}

func transformDid(ctx context.Context, store *askarstore.Store) error {
	return drainBatches(ctx, store, IndyDid, func(tx *askarstore.Tx, rec *askarstore.Record) error {
		var dv didValue
		if err := json.Unmarshal(rec.Value, &dv); err != nil {
			return walleterr.Wrap(walleterr.IOError, "did: decode value json", err)
		}
		metaRaw, err := fetchCompanionMetadata(ctx, tx, IndyDidMetadata, rec.Name)
		if err != nil {
			return err
		}
		var metadata any
		if metaRaw != "" {
			var decoded any
			if err := json.Unmarshal([]byte(metaRaw), &decoded); err == nil {
				metadata = decoded
			} else {
				metadata = metaRaw // best-effort: not JSON, keep as opaque string
			}
		}
		out := map[string]any{"did": dv.DID, "verkey": dv.Verkey, "metadata": metadata}
		value, err := json.Marshal(out)
		if err != nil {
			return walleterr.Wrap(walleterr.IOError, "did: marshal askar value", err)
		}
		tags := []askarstore.Tag{{Name: "verkey", Value: dv.Verkey, Plaintext: true}}
		return tx.Insert(ctx, AskarDid, rec.Name, value, tags)
	})
}

type schemaIDValue struct {
	SchemaID string `json:"schema_id"`
}

func transformCredentialDefinitions(ctx context.Context, store *askarstore.Store) error {
	return drainBatches(ctx, store, IndyCredentialDefinition, func(tx *askarstore.Tx, rec *askarstore.Record) error {
		schemaIDRec, err := tx.Fetch(ctx, IndySchemaID, rec.Name)
		if err != nil {
			return err
		}
		if schemaIDRec == nil {
			return walleterr.New(walleterr.MissingSchemaID, "credential_def: no companion Indy::SchemaId for "+rec.Name)
		}
		if err := tx.Remove(ctx, IndySchemaID, rec.Name); err != nil {
			return err
		}

		tags := []askarstore.Tag{{Name: "schema_id", Value: string(schemaIDRec.Value), Plaintext: true}}
		if err := tx.Insert(ctx, AskarCredentialDef, rec.Name, rec.Value, tags); err != nil {
			return err
		}

		if err := moveCompanionIfPresent(ctx, tx, IndyCredentialDefinitionPrivateKey, AskarCredentialDefPrivate, rec.Name); err != nil {
			return err
		}
		if err := moveCompanionIfPresent(ctx, tx, IndyCredentialDefinitionCorrectnessProof, AskarCredentialDefKeyProof, rec.Name); err != nil {
			return err
		}
		return nil
	})
}

func moveCompanionIfPresent(ctx context.Context, tx *askarstore.Tx, srcCategory, dstCategory, name string) error {
	rec, err := tx.Fetch(ctx, srcCategory, name)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if err := tx.Remove(ctx, srcCategory, name); err != nil {
		return err
	}
	return tx.Insert(ctx, dstCategory, name, rec.Value, nil)
}

func transformCredentials(ctx context.Context, store *askarstore.Store) error {
	return drainBatches(ctx, store, IndyCredential, func(tx *askarstore.Tx, rec *askarstore.Record) error {
		tags, err := credentialTags(rec.Value)
		if err != nil {
			return err
		}
		return tx.Insert(ctx, AskarCredential, rec.Name, rec.Value, tags)
	})
}
